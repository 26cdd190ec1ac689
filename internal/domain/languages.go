package domain

// Language is a recognition language offered to the user.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName,omitempty"`
}

// DisplayName renders "Name (Native)" when the native name differs.
func (l Language) DisplayName() string {
	if l.NativeName != "" && l.NativeName != l.Name {
		return l.Name + " (" + l.NativeName + ")"
	}
	return l.Name
}

// SupportedLanguages lists BCP-47 tags accepted by the recording surface.
var SupportedLanguages = []Language{
	{Code: "en-US", Name: "English (US)", NativeName: "English (US)"},
	{Code: "fr-FR", Name: "French", NativeName: "Français"},
	{Code: "es-ES", Name: "Spanish", NativeName: "Español"},
	{Code: "de-DE", Name: "German", NativeName: "Deutsch"},
	{Code: "it-IT", Name: "Italian", NativeName: "Italiano"},
	{Code: "pt-BR", Name: "Portuguese (Brazil)", NativeName: "Português (Brasil)"},
	{Code: "ru-RU", Name: "Russian", NativeName: "Русский"},
	{Code: "zh-CN", Name: "Chinese (Simplified)", NativeName: "简体中文"},
	{Code: "ja-JP", Name: "Japanese", NativeName: "日本語"},
	{Code: "ko-KR", Name: "Korean", NativeName: "한국어"},
	{Code: "ar-SA", Name: "Arabic", NativeName: "العربية"},
	{Code: "hi-IN", Name: "Hindi", NativeName: "हिन्दी"},
	{Code: "nl-NL", Name: "Dutch", NativeName: "Nederlands"},
	{Code: "pl-PL", Name: "Polish", NativeName: "Polski"},
	{Code: "tr-TR", Name: "Turkish", NativeName: "Türkçe"},
	{Code: "sv-SE", Name: "Swedish", NativeName: "Svenska"},
}

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "en-US"

// LookupLanguage returns the supported language for code.
func LookupLanguage(code string) (Language, bool) {
	for _, lang := range SupportedLanguages {
		if lang.Code == code {
			return lang, true
		}
	}
	return Language{}, false
}
