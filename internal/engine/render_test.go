package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestRender_SingleFile(t *testing.T) {
	env := mustEnv(t, "pdf-ocr-deu", []string{"*.pdf"},
		[]string{"ocrmypdf -l deu {in_file} {out_file}"})

	inv, err := Render(env, "/data/_HOTIFY", "/data/_OUTPUT", Context{
		InFile: "/data/_HOTIFY/pdf-ocr-deu/report.pdf",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wantCmd := "ocrmypdf -l deu /data/_HOTIFY/pdf-ocr-deu/report.pdf /data/_OUTPUT/report.pdf"
	if inv.Rendered[0] != wantCmd {
		t.Errorf("Rendered[0] = %q, want %q", inv.Rendered[0], wantCmd)
	}
	if inv.OutFile != "/data/_OUTPUT/report.pdf" {
		t.Errorf("OutFile = %q, want /data/_OUTPUT/report.pdf", inv.OutFile)
	}
	if !reflect.DeepEqual(inv.Inputs, []string{"/data/_HOTIFY/pdf-ocr-deu/report.pdf"}) {
		t.Errorf("Inputs = %v", inv.Inputs)
	}
	wantArgv := []string{"ocrmypdf", "-l", "deu",
		"/data/_HOTIFY/pdf-ocr-deu/report.pdf", "/data/_OUTPUT/report.pdf"}
	if !reflect.DeepEqual(inv.Commands[0], wantArgv) {
		t.Errorf("Commands[0] = %v, want %v", inv.Commands[0], wantArgv)
	}
}

func TestRender_BatchQuotesAndPrefix(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*.pdf"},
		[]string{"pdfunite {in_files} {out_file}"})

	inv, err := Render(env, "/hot", "/out", Context{
		InFiles: []string{"/hot/merge/a.pdf", "/hot/merge/b 2.pdf"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `pdfunite "/hot/merge/a.pdf" "/hot/merge/b 2.pdf" /out/multiple--a.pdf`
	if inv.Rendered[0] != want {
		t.Errorf("Rendered[0] = %q, want %q", inv.Rendered[0], want)
	}
	if inv.OutFile != "/out/multiple--a.pdf" {
		t.Errorf("OutFile = %q, want /out/multiple--a.pdf", inv.OutFile)
	}
	// Quoting keeps the space-containing path as one argv entry.
	wantArgv := []string{"pdfunite", "/hot/merge/a.pdf", "/hot/merge/b 2.pdf", "/out/multiple--a.pdf"}
	if !reflect.DeepEqual(inv.Commands[0], wantArgv) {
		t.Errorf("Commands[0] = %v, want %v", inv.Commands[0], wantArgv)
	}
}

func TestRender_BatchPathsWithQuotesSurviveTokenization(t *testing.T) {
	env := mustEnv(t, "merge", []string{"*"},
		[]string{"pdfunite {in_files} joined.pdf"})

	awkward := []string{`/hot/merge/he said "hi".pdf`, `/hot/merge/back\slash.pdf`}
	inv, err := Render(env, "/hot", "/out", Context{InFiles: awkward})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wantArgv := []string{"pdfunite", awkward[0], awkward[1], "joined.pdf"}
	if !reflect.DeepEqual(inv.Commands[0], wantArgv) {
		t.Errorf("Commands[0] = %#v, want %#v", inv.Commands[0], wantArgv)
	}
}

func TestRender_SharedOutFileAcrossSteps(t *testing.T) {
	env := mustEnv(t, "convert", []string{"*.tif"}, []string{
		"convert {in_file} {out_file}",
		"exiftool -overwrite_original {out_file}",
	})

	inv, err := Render(env, "/hot", "/out", Context{InFile: "/hot/convert/scan.tif"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if inv.Rendered[0] != "convert /hot/convert/scan.tif /out/scan.tif" {
		t.Errorf("step 1 = %q", inv.Rendered[0])
	}
	if inv.Rendered[1] != "exiftool -overwrite_original /out/scan.tif" {
		t.Errorf("step 2 = %q, out_file must be identical across steps", inv.Rendered[1])
	}
}

func TestRender_NoOutFileReference(t *testing.T) {
	env := mustEnv(t, "notify", []string{"*"}, []string{"notify-send {in_file}"})

	inv, err := Render(env, "/hot", "/out", Context{InFile: "/hot/notify/x"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if inv.OutFile != "" {
		t.Errorf("OutFile = %q, want empty when no step references it", inv.OutFile)
	}
}

func TestRender_UnknownTokenPassthrough(t *testing.T) {
	env := mustEnv(t, "awkish", []string{"*"},
		[]string{`awk '{print}' {in_file}`})

	inv, err := Render(env, "/hot", "/out", Context{InFile: "/hot/awkish/f"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if inv.Rendered[0] != `awk '{print}' /hot/awkish/f` {
		t.Errorf("Rendered[0] = %q, unknown braces must survive untouched", inv.Rendered[0])
	}
}

func TestRender_MixedCardinalityFails(t *testing.T) {
	env := mustEnv(t, "mixed", []string{"*"},
		[]string{"first {in_files}", "second {in_file}"})

	_, err := Render(env, "/hot", "/out", Context{InFiles: []string{"/hot/mixed/a"}})
	if err == nil {
		t.Fatal("Render() with {in_file} in a batch chain should fail")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T, want *ConfigError", err)
	}
	if ce.Env != "mixed" || ce.Step != 2 || ce.Placeholder != VarInFile {
		t.Errorf("ConfigError = %+v, want env=mixed step=2 placeholder=in_file", ce)
	}
}

func TestRender_MissingInputs(t *testing.T) {
	single := mustEnv(t, "s", []string{"*"}, []string{"cmd {in_file}"})
	if _, err := Render(single, "/hot", "/out", Context{}); err == nil {
		t.Error("single render without InFile should fail")
	}

	batch := mustEnv(t, "b", []string{"*"}, []string{"cmd {in_files}"})
	if _, err := Render(batch, "/hot", "/out", Context{}); err == nil {
		t.Error("batch render without InFiles should fail")
	}
}

func TestRender_Deterministic(t *testing.T) {
	env := mustEnv(t, "det", []string{"*"}, []string{"cmd {in_files} {out_file}"})
	ctx := Context{InFiles: []string{"/hot/det/a", "/hot/det/b"}}

	first, err := Render(env, "/hot", "/out", ctx)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := Render(env, "/hot", "/out", ctx)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !reflect.DeepEqual(first.Rendered, second.Rendered) {
		t.Errorf("repeated renders differ: %v vs %v", first.Rendered, second.Rendered)
	}
}

func TestRender_SuppliedOutFileWins(t *testing.T) {
	env := mustEnv(t, "o", []string{"*"}, []string{"cmd {in_file} {out_file}"})
	inv, err := Render(env, "/hot", "/out", Context{
		InFile:  "/hot/o/x",
		OutFile: "/elsewhere/fixed.bin",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if inv.OutFile != "/elsewhere/fixed.bin" {
		t.Errorf("OutFile = %q, want the supplied path", inv.OutFile)
	}
}
