// SPDX-License-Identifier: MIT

package names

import "testing"

func TestIsCanonical(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"MSXII Sound - Lofi Jazz Guitar 2", true},
		{"Past to Future Samples - 12-Bit Hip-Hop Drums", true},
		{"789ten - The Jaxx & Vega Ultimate Big Room Pack 1", true},
		{"Splice Sounds - Unmüte - Cosmos", true},
		{"Splice Sounds - VÉRITÉ - New Noise Sample Pack", true},
		{"Acme Sounds - Pack Vol 1.rar", true},
		{"Montage by Splice Light Refractions Celestial Ambient", false},
		{"Omega Music Library 4 (Compositions and Stems)", false},
		{"The Best of City Pop", false},
		{"Convexity Data Cartridge", false},
		{"Gothic Storm Music", false},
		{" Acme - Leading Space", false},
		{"Acme - Trailing Space ", false},
		{"Acme - Double  Space", false},
		{"Acme - Dotted v1.2", false},
	}
	for _, tc := range cases {
		if got := IsCanonical(tc.name); got != tc.want {
			t.Errorf("IsCanonical(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDivide(t *testing.T) {
	cases := []struct {
		cname string
		label string
		title string
		note  string
	}{
		{"MSXII Sound - Lofi Jazz Guitar 2", "MSXII Sound", "Lofi Jazz Guitar 2", ""},
		{"Splice Sounds - Unmüte - Cosmos", "Splice Sounds", "Unmüte - Cosmos", ""},
		{"Acme Sounds - Big Room Anthems (2004)", "Acme Sounds", "Big Room Anthems", "2004"},
		{"Acme Sounds - Pack Vol 1.rar", "Acme Sounds", "Pack Vol 1", ""},
		{"Label - Title (Deluxe Edition)", "Label", "Title", "Deluxe Edition"},
	}
	for _, tc := range cases {
		label, title, note := Divide(tc.cname)
		if label != tc.label || title != tc.title || note != tc.note {
			t.Errorf("Divide(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.cname, label, title, note, tc.label, tc.title, tc.note)
		}
	}
}

// Divide followed by Join must reproduce any canonical name.
func TestDivideJoinRoundTrip(t *testing.T) {
	cnames := []string{
		"MSXII Sound - Lofi Jazz Guitar 2",
		"Past to Future Samples - 12-Bit Hip-Hop Drums",
		"789ten - The Jaxx & Vega Ultimate Big Room Pack 1",
		"Splice Sounds - Unmüte - Cosmos",
		"Acme Sounds - Big Room Anthems (2004)",
		"Label - Title (Deluxe Edition)",
	}
	for _, cname := range cnames {
		if !IsCanonical(cname) {
			t.Fatalf("fixture %q is not canonical", cname)
		}
		if got := Join(Divide(cname)); got != cname {
			t.Errorf("Join(Divide(%q)) = %q", cname, got)
		}
	}
}

func TestLabelDirFromCname(t *testing.T) {
	cases := []struct {
		cname string
		want  string
	}{
		{"MSXII Sound - Lofi Jazz Guitar 2", "msxii_sound"},
		{"Past to Future Samples - 12-Bit Hip-Hop Drums", "past_to_future_samples"},
		{"789ten - The Jaxx & Vega Ultimate Big Room Pack 1", "789ten"},
		{"Splice Sounds - Unmüte - Cosmos", "splice_sounds"},
	}
	for _, tc := range cases {
		if got := LabelDirFromCname(tc.cname); got != tc.want {
			t.Errorf("LabelDirFromCname(%q) = %q, want %q", tc.cname, got, tc.want)
		}
	}
}

func TestYear(t *testing.T) {
	cases := []struct {
		note string
		want string
	}{
		{"2004", "2004"},
		{"1999", "1999"},
		{"Deluxe Edition", ""},
		{"20x4", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Year(tc.note); got != tc.want {
			t.Errorf("Year(%q) = %q, want %q", tc.note, got, tc.want)
		}
	}
}

func TestFileExtension(t *testing.T) {
	cases := []struct {
		basename string
		want     string
	}{
		{"kick.wav", "wav"},
		{"kick.WAV", "wav"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
		{".hidden", ""},
		{"trailing.", ""},
	}
	for _, tc := range cases {
		if got := FileExtension(tc.basename); got != tc.want {
			t.Errorf("FileExtension(%q) = %q, want %q", tc.basename, got, tc.want)
		}
	}
}

func TestHasMediaLabel(t *testing.T) {
	cases := []struct {
		title string
		want  bool
	}{
		{"Club Hits CD1", true},
		{"Deep Cuts EP", true},
		{"Classics LP", true},
		{"Night Drive", false},
		{"Lapdance Grooves", false}, // no space before LP
		{"Compact Discs", false},
	}
	for _, tc := range cases {
		if got := HasMediaLabel(tc.title); got != tc.want {
			t.Errorf("HasMediaLabel(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestTrimMediaLabels(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Best Of LP2", "Best Of"},
		{"Singles CDM", "Singles"},
		{"Singles CDS1", "Singles"},
		{"Promo MCD", "Promo"},
		{"Archive CDR5 Sessions", "Archive Sessions"},
		{"Deep Cuts EP", "Deep Cuts"},
		{"Club CD", "Club CD"}, // bare CD is not a strippable form
		{"Night Drive", "Night Drive"},
	}
	for _, tc := range cases {
		if got := TrimMediaLabels(tc.title); got != tc.want {
			t.Errorf("TrimMediaLabels(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}
