package extractor

import (
	"image"
	"testing"
)

func TestParseTesseractTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t95\tHello\n" +
		"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t85\tworld\n"

	text, conf, err := parseTesseractTSV(tsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q, want %q", text, "Hello world")
	}
	wantConf := (95.0 + 85.0) / 2 / 100.0
	if conf != wantConf {
		t.Errorf("conf = %v, want %v", conf, wantConf)
	}
}

func TestParseTesseractTSVEmpty(t *testing.T) {
	text, conf, err := parseTesseractTSV("level\tpage_num\tconf\ttext\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" || conf != 0 {
		t.Errorf("expected empty result, got text=%q conf=%v", text, conf)
	}
}

func TestParseTesseractTSVBadHeader(t *testing.T) {
	_, _, err := parseTesseractTSV("foo\tbar\n1\t2\n")
	if err == nil {
		t.Fatal("expected error for missing conf/text columns")
	}
}

func TestResizeToFitNoopWhenSmall(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	out := resizeToFit(src, 3500)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Errorf("expected unchanged bounds, got %v", out.Bounds())
	}
}

func TestResizeToFitScalesDown(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 7000, 3500))
	out := resizeToFit(src, 3500)
	b := out.Bounds()
	if b.Dx() > 3500 || b.Dy() > 3500 {
		t.Errorf("resized bounds %v still exceed max dimension", b)
	}
	if b.Dx() != 3500 {
		t.Errorf("expected width scaled to max dimension, got %d", b.Dx())
	}
}
