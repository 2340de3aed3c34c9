package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocale(t *testing.T) {
	require.Equal(t, LocaleEnglish, ParseLocale("en"))
	require.Equal(t, LocaleArabic, ParseLocale("ar"))
	require.Equal(t, LocaleEnglish, ParseLocale(""))
	require.Equal(t, LocaleEnglish, ParseLocale("fr"))
	require.Equal(t, LocaleEnglish, ParseLocale("AR"))
}

func TestAugmentPreservesRawText(t *testing.T) {
	raw := "  how do I cook rice?\nwith a newline  "
	augmented := Augment(raw, LocaleEnglish)
	require.True(t, strings.HasPrefix(augmented, raw))
	require.NotEqual(t, raw, augmented)
}

func TestAugmentIsDeterministic(t *testing.T) {
	a := Augment("same question", LocaleArabic)
	b := Augment("same question", LocaleArabic)
	require.Equal(t, a, b)
}

func TestAugmentPerLocale(t *testing.T) {
	en := Augment("hello", LocaleEnglish)
	ar := Augment("hello", LocaleArabic)
	require.NotEqual(t, en, ar)
	// An unknown locale falls back to English instructions.
	require.Equal(t, en, Augment("hello", Locale("xx")))
}

func TestGreetingAndDefaultTitleCoverAllLocales(t *testing.T) {
	for _, loc := range []Locale{LocaleEnglish, LocaleArabic} {
		require.NotEmpty(t, Greeting(loc))
		require.NotEmpty(t, DefaultTitle(loc))
	}
	require.Equal(t, Greeting(LocaleEnglish), Greeting(Locale("xx")))
	require.Equal(t, DefaultTitle(LocaleEnglish), DefaultTitle(Locale("xx")))
}
