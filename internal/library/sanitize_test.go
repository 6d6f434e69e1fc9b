package library

import "testing"

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Game1", want: "Game1"},
		{in: "  Spaced Out  ", want: "Spaced Out"},
		{in: "Baldur’s Gate 3", want: "Baldur's Gate 3"},
		{in: "Tom ClancyŌĆÖs", want: "Tom Clancy's"},
		{in: "Title: Subtitle", want: "Title- Subtitle"},
		{in: "AC/DC Live", want: "AC-DC Live"},
		{in: `Quote "Me" <now> | why? * \ok`, want: "Quote Me now  why  ok"},
		{in: "“Smart”", want: "Smart"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
