package ingest

import "testing"

func TestScriptDetectorIdentifiesCJK(t *testing.T) {
	d := NewScriptDetector()
	if got := d.Detect("こんにちは世界"); got != "ja" {
		t.Errorf("got %q want ja", got)
	}
	if got := d.Detect("你好世界"); got != "zh" {
		t.Errorf("got %q want zh", got)
	}
	if got := d.Detect("안녕하세요"); got != "ko" {
		t.Errorf("got %q want ko", got)
	}
}

func TestScriptDetectorIdentifiesCyrillicAndArabic(t *testing.T) {
	d := NewScriptDetector()
	if got := d.Detect("Привет мир"); got != "ru" {
		t.Errorf("got %q want ru", got)
	}
	if got := d.Detect("مرحبا بالعالم"); got != "ar" {
		t.Errorf("got %q want ar", got)
	}
}

func TestScriptDetectorDefaultsToEnglishForLatinStopwords(t *testing.T) {
	d := NewScriptDetector()
	if got := d.Detect("the quick brown fox and the lazy dog"); got != "en" {
		t.Errorf("got %q want en", got)
	}
}

func TestScriptDetectorDistinguishesFrenchFromEnglish(t *testing.T) {
	d := NewScriptDetector()
	if got := d.Detect("le chat et la souris dans les bois"); got != "fr" {
		t.Errorf("got %q want fr", got)
	}
}

func TestScriptDetectorEmptyTextReturnsUnd(t *testing.T) {
	d := NewScriptDetector()
	if got := d.Detect(""); got != "und" {
		t.Errorf("got %q want und", got)
	}
}
