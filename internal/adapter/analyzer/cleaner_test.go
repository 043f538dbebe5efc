package analyzer

import (
	"testing"
)

func TestCleaner_Clean(t *testing.T) {
	tests := []struct {
		name string
		opts CleanOptions
		in   string
		want string
	}{
		{
			name: "empty",
			opts: DefaultCleanOptions(),
			in:   "",
			want: "",
		},
		{
			name: "collapses inline whitespace",
			opts: DefaultCleanOptions(),
			in:   "  Merhaba   dünya\t\tnasılsın  ",
			want: "Merhaba dünya nasılsın",
		},
		{
			name: "keeps paragraph breaks and drops blank lines",
			opts: DefaultCleanOptions(),
			in:   "birinci satır  \r\n\n   ikinci satır\n\t\n",
			want: "birinci satır\nikinci satır",
		},
		{
			name: "collapses repeated punctuation",
			opts: DefaultCleanOptions(),
			in:   "Gerçekten mi?? Evet!!! Tamam...",
			want: "Gerçekten mi? Evet! Tamam.",
		},
		{
			name: "keeps special characters by default",
			opts: DefaultCleanOptions(),
			in:   "fiyat: 5€ (indirimli)",
			want: "fiyat: 5€ (indirimli)",
		},
		{
			name: "removes special characters when asked",
			opts: CleanOptions{NormalizeWhitespace: true, RemoveSpecialChars: true},
			in:   "fiyat: 5€ (indirimli) - şimdi!",
			want: "fiyat 5 indirimli - şimdi!",
		},
		{
			name: "keeps blank line separator",
			opts: CleanOptions{NormalizeWhitespace: true, CollapsePunctuation: true, Separator: "\n\n"},
			in:   "Başlık  bir\n  gövde metni  \r\n\r\n\n\nBaşlık iki\n\t\ngövde!!",
			want: "Başlık bir\ngövde metni\n\nBaşlık iki\ngövde!",
		},
		{
			name: "keeps dotted separator through punctuation passes",
			opts: CleanOptions{NormalizeWhitespace: true, RemoveSpecialChars: true, CollapsePunctuation: true, Separator: "..."},
			in:   "bir  (1)...iki?? ......üç",
			want: "bir 1...iki?...üç",
		},
		{
			name: "no passes",
			opts: CleanOptions{},
			in:   "  a  b!!  ",
			want: "  a  b!!  ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCleaner(tt.opts).Clean(tt.in)
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleaner_CleanAll(t *testing.T) {
	c := NewCleaner(DefaultCleanOptions())

	got := c.CleanAll([]string{" a  b ", "c!!"})
	if len(got) != 2 || got[0] != "a b" || got[1] != "c!" {
		t.Errorf("unexpected result: %q", got)
	}
}
