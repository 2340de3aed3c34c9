// Package prompt owns the locale-dependent text: the instruction block
// appended to every outgoing user turn, the canned greeting for freshly
// created conversations, and the default conversation title.
package prompt

// Locale selects the instruction language. The set is closed: exactly the
// locales below are supported, anything else normalizes to English.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleArabic  Locale = "ar"
)

// ParseLocale normalizes a locale tag to a supported Locale.
func ParseLocale(tag string) Locale {
	if tag == string(LocaleArabic) {
		return LocaleArabic
	}
	return LocaleEnglish
}

var instructions = map[Locale]string{
	LocaleEnglish: "Answer in clear, conversational English. Keep the answer focused on the question and avoid repeating it back.",
	LocaleArabic:  "أجب باللغة العربية الفصحى بأسلوب واضح وودود. اجعل الإجابة مركزة على السؤال دون تكراره.",
}

var greetings = map[Locale]string{
	LocaleEnglish: "Hello! I'm your assistant. Ask me anything about this topic and I'll do my best to help.",
	LocaleArabic:  "مرحباً! أنا مساعدك الذكي. اسألني ما تشاء حول هذا الموضوع وسأبذل جهدي لمساعدتك.",
}

var defaultTitles = map[Locale]string{
	LocaleEnglish: "New chat",
	LocaleArabic:  "محادثة جديدة",
}

// Augment wraps raw user text with the locale's instruction block. It is a
// pure function: the raw text is preserved character for character and the
// same input always yields the same output.
func Augment(raw string, loc Locale) string {
	instruction, ok := instructions[loc]
	if !ok {
		instruction = instructions[LocaleEnglish]
	}
	return raw + "\n\n" + instruction
}

// Greeting returns the canned assistant greeting persisted as the first
// message of a conversation opened without a question.
func Greeting(loc Locale) string {
	if g, ok := greetings[loc]; ok {
		return g
	}
	return greetings[LocaleEnglish]
}

// DefaultTitle returns the placeholder title for a conversation the user has
// not named yet.
func DefaultTitle(loc Locale) string {
	if t, ok := defaultTitles[loc]; ok {
		return t
	}
	return defaultTitles[LocaleEnglish]
}
