package classify

import "golang.org/x/text/language"

var supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(supported)

var messages = map[Category][2]string{
	CategoryModeration: {
		"The request was rejected by the content safety filter. Please adjust your photo or prompt and try again.",
		"Permintaan ditolak oleh filter keamanan konten. Silakan ubah foto atau prompt lalu coba lagi.",
	},
	CategoryInvalidRequest: {
		"The generation request was invalid and could not be processed.",
		"Permintaan generasi tidak valid dan tidak dapat diproses.",
	},
	CategoryRateLimit: {
		"The generation service is busy right now. Your credits were refunded; please try again later.",
		"Layanan generasi sedang sibuk. Kredit Anda telah dikembalikan; silakan coba lagi nanti.",
	},
	CategoryNetwork: {
		"A network problem interrupted the generation. Your credits were refunded; please try again.",
		"Gangguan jaringan menghentikan proses generasi. Kredit Anda telah dikembalikan; silakan coba lagi.",
	},
	CategoryUpstream: {
		"The generation service is temporarily unavailable. Your credits were refunded; please try again.",
		"Layanan generasi sedang tidak tersedia. Kredit Anda telah dikembalikan; silakan coba lagi.",
	},
	CategoryTimeout: {
		"The generation took too long and was stopped. Your credits were refunded; please try again.",
		"Proses generasi terlalu lama dan dihentikan. Kredit Anda telah dikembalikan; silakan coba lagi.",
	},
	CategoryStorage: {
		"The result could not be saved. Your credits were refunded; please try again.",
		"Hasil tidak dapat disimpan. Kredit Anda telah dikembalikan; silakan coba lagi.",
	},
	CategoryCanceled: {
		"The generation was interrupted. Your credits were refunded.",
		"Proses generasi terhenti. Kredit Anda telah dikembalikan.",
	},
	CategoryUnknown: {
		"The generation failed",
		"Proses generasi gagal",
	},
}

// langIndex maps a locale string onto an index into messages.
func langIndex(locale string) int {
	if locale == "" {
		return 0
	}
	_, idx := language.MatchStrings(matcher, locale)
	if idx < 0 || idx >= len(supported) {
		return 0
	}
	return idx
}

// Message returns the user-facing text for category in locale. Unknown
// locales fall back to English.
func Message(category Category, locale string) string {
	texts, ok := messages[category]
	if !ok {
		texts = messages[CategoryUnknown]
	}
	return texts[langIndex(locale)]
}
