package templates

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSMSTextCollectsParams(t *testing.T) {
	text, err := parseSMSText("reminder", "Hola {{.name}}, su cita es el {{.date}}{{if .time}} a las {{.time}}{{end}}.")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []string{"date", "name", "time"}; !reflect.DeepEqual(text.params, want) {
		t.Fatalf("params %v want %v", text.params, want)
	}
	if _, err := parseSMSText("broken", "Hola {{.name"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := parseSMSText("empty", "  "); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestSMSTextRenderReportsEveryMissingParam(t *testing.T) {
	text, err := parseSMSText("reminder", " Cita el {{.date}} a las {{.time}} ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := text.render(map[string]string{"date": "03/05", "time": "10:00", "extra": "ignored"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Cita el 03/05 a las 10:00" {
		t.Fatalf("unexpected output %q", out)
	}

	_, err = text.render(map[string]string{"date": " "})
	var missing *MissingParamsError
	if !errors.As(err, &missing) || !errors.Is(err, ErrMissingParams) {
		t.Fatalf("expected missing params error, got %v", err)
	}
	if want := []string{"date", "time"}; !reflect.DeepEqual(missing.Missing, want) {
		t.Fatalf("missing %v want %v", missing.Missing, want)
	}
}
