package server

import "net/http"

// The coordinator serves JSON to the companion UI and to transport webhooks;
// nothing here is a browsing context. The default policy therefore locks the
// responses down completely: no embedding, no resource loading, no referrer,
// and none of the device capabilities a browser could request on our behalf —
// camera and microphone belong to the lens device, not to API responses.
const (
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	apiFrameOptions          = "DENY"
	apiReferrerPolicy        = "no-referrer"
	apiPermissionsPolicy     = "camera=(), microphone=(), geolocation=(), display-capture=()"
	apiContentTypeOptions    = "nosniff"
)

// SecurityConfig overrides individual hardening headers. Zero-valued fields
// use the locked-down API defaults; set a field to change one header without
// disturbing the rest.
type SecurityConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ContentTypeOptions    string
}

func (cfg SecurityConfig) withDefaults() SecurityConfig {
	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = apiContentSecurityPolicy
	}
	if cfg.FrameOptions == "" {
		cfg.FrameOptions = apiFrameOptions
	}
	if cfg.ReferrerPolicy == "" {
		cfg.ReferrerPolicy = apiReferrerPolicy
	}
	if cfg.PermissionsPolicy == "" {
		cfg.PermissionsPolicy = apiPermissionsPolicy
	}
	if cfg.ContentTypeOptions == "" {
		cfg.ContentTypeOptions = apiContentTypeOptions
	}
	return cfg
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	effective := cfg.withDefaults()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", effective.ContentSecurityPolicy)
		w.Header().Set("X-Frame-Options", effective.FrameOptions)
		w.Header().Set("X-Content-Type-Options", effective.ContentTypeOptions)
		w.Header().Set("Referrer-Policy", effective.ReferrerPolicy)
		w.Header().Set("Permissions-Policy", effective.PermissionsPolicy)
		next.ServeHTTP(w, r)
	})
}
