package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		{name: "q weights pick id", headers: map[string]string{"Accept-Language": "en;q=0.3, id;q=0.9"}, want: "id"},
		{name: "q weights pick en", headers: map[string]string{"Accept-Language": "id;q=0.2, en-GB;q=0.8"}, want: "en"},
		{name: "unsupported language", headers: map[string]string{"Accept-Language": "ja-JP"}, country: "ID", want: "en"},
		{name: "malformed header", headers: map[string]string{"Accept-Language": ";;;"}, want: "en"},
		{name: "x-locale before accept-language", headers: map[string]string{"X-Locale": "en", "Accept-Language": "id"}, want: "en"},
		{name: "regional x-locale", headers: map[string]string{"X-Locale": "id-ID"}, want: "id"},
		{name: "country table lowercase", country: "id", want: "id"},
		{name: "country outside table", country: "SG", fallback: "id", want: "en"},
		{name: "regional fallback", fallback: "id-ID", want: "id"},
		{name: "unsupported fallback", fallback: "fr", want: "en"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := detectLocale(req, tc.fallback, tc.country); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		{name: "proxy header uppercased", headers: map[string]string{"CF-IPCountry": "sg", "Accept-Language": "id-ID"}, want: "SG"},
		{name: "heaviest tag region", headers: map[string]string{"Accept-Language": "fr-FR;q=0.5, pt-BR"}, want: "BR"},
		{name: "script and region", headers: map[string]string{"X-Locale": "zh-Hant-TW"}, want: "TW"},
		{name: "x-locale region first", headers: map[string]string{"X-Locale": "id-ID", "Accept-Language": "en-GB"}, want: "ID"},
		{name: "region-less id", headers: map[string]string{"Accept-Language": "id"}, want: "ID"},
		{name: "region-less en is not guessed", headers: map[string]string{"Accept-Language": "en"}, want: ""},
		{
			name:    "lookup uses first forwarded ip",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"},
			lookup: func(ip string) (string, error) {
				if ip != "198.51.100.7" {
					return "", errors.New("unexpected ip " + ip)
				}
				return "my", nil
			},
			want: "MY",
		},
		{
			name:   "lookup error",
			lookup: func(ip string) (string, error) { return "", errors.New("no record") },
			want:   "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ResolveCountry(req, tc.lookup); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LocaleFromContext(ctx); got != "en" {
		t.Fatalf("LocaleFromContext() default = %q, want %q", got, "en")
	}
	ctx = context.WithValue(ctx, LocaleKey, "id")
	if got := LocaleFromContext(ctx); got != "id" {
		t.Fatalf("LocaleFromContext() with value = %q, want %q", got, "id")
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := map[string]string{
		"id":                  "id",
		"id-ID":               "id",
		"en-GB,id;q=0.5":      "en",
		"fr-FR,id;q=0.9":      "id",
		"de":                  "en",
		"":                    "en",
		"not a locale at all": "en",
	}
	for in, want := range tests {
		if got := NormalizeLocale(in); got != want {
			t.Fatalf("NormalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestI18NMiddlewareUsesLookup(t *testing.T) {
	var gotLocale, gotCountry string
	h := I18N("en", func(ip string) (string, error) { return "id", nil })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	if gotLocale != "id" || gotCountry != "ID" {
		t.Fatalf("locale = %q country = %q, want id/ID", gotLocale, gotCountry)
	}
	if rec.Header().Get("Content-Language") != "id" {
		t.Fatalf("Content-Language = %q", rec.Header().Get("Content-Language"))
	}
}
