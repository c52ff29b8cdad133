package xmlconv

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTreeEngine(t *testing.T) {
	xml := `<AssociationResponse>
  <ApplicationContextName Value="LN" />
  <ResultSourceDiagnostic>
    <ACSEServiceUser Value="00" />
  </ResultSourceDiagnostic>
  <NegotiatedConformance>
    <ConformanceBit Name="Get" />
    <ConformanceBit Name="Set" />
  </NegotiatedConformance>
  <Note>plain</Note>
  <Empty />
</AssociationResponse>`

	got, err := TreeEngine{}.XMLToJSON(xml)
	if err != nil {
		t.Fatalf("XMLToJSON() error = %v", err)
	}

	want := `{
  "AssociationResponse": {
    "ApplicationContextName": {
      "Value": "LN"
    },
    "ResultSourceDiagnostic": {
      "ACSEServiceUser": {
        "Value": "00"
      }
    },
    "NegotiatedConformance": {
      "ConformanceBit": [
        {
          "Name": "Get"
        },
        {
          "Name": "Set"
        }
      ]
    },
    "Note": "plain",
    "Empty": ""
  }
}`
	if got != want {
		t.Errorf("XMLToJSON() =\n%s\nwant\n%s", got, want)
	}
}

func TestTreeEngineMixedText(t *testing.T) {
	got, err := TreeEngine{}.XMLToJSON(`<A id="1">hello</A>`)
	if err != nil {
		t.Fatalf("XMLToJSON() error = %v", err)
	}

	var decoded map[string]map[string]string
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["A"]["id"] != "1" || decoded["A"]["#text"] != "hello" {
		t.Errorf("XMLToJSON() = %s", got)
	}
}

func TestTreeEngineRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed", "<A><B></A>"},
		{"no root", "just text"},
		{"two roots", "<A/><B/>"},
		{"truncated", "<A><B/>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (TreeEngine{}).XMLToJSON(tt.xml); err == nil {
				t.Errorf("XMLToJSON(%q) error = nil, want error", tt.xml)
			}
		})
	}
}

func TestConverterBlankInput(t *testing.T) {
	c := NewConverter()
	for _, in := range []string{"", "   ", "\n\t"} {
		if got := c.Convert(in); got != "{}" {
			t.Errorf("Convert(%q) = %q, want %q", in, got, "{}")
		}
	}
}

func TestConverterUsesFallback(t *testing.T) {
	failing := EngineFunc(func(string) (string, error) { return "", errors.New("primary broke") })
	fallback := EngineFunc(func(string) (string, error) { return `{"ok":true}`, nil })

	c := NewConverterWithEngines(failing, fallback)
	got, err := c.TryConvert("<A/>")
	if err != nil {
		t.Fatalf("TryConvert() error = %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("TryConvert() = %q, want fallback output", got)
	}
}

func TestConverterEnvelope(t *testing.T) {
	failing := EngineFunc(func(string) (string, error) { return "", errors.New("primary broke") })
	alsoFailing := EngineFunc(func(string) (string, error) { return "", errors.New("fallback broke") })

	c := NewConverterWithEngines(failing, alsoFailing)
	got, err := c.TryConvert("<A>\r\n</A>")
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("TryConvert() error = %v, want ErrConversion", err)
	}

	var env map[string]string
	if err := json.Unmarshal([]byte(got), &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}
	if env["error"] != "Failed to convert XML to JSON" {
		t.Errorf("error = %q", env["error"])
	}
	if env["primaryError"] != "primary broke" || env["fallbackError"] != "fallback broke" {
		t.Errorf("engine errors = %q, %q", env["primaryError"], env["fallbackError"])
	}
	if env["originalXml"] != "<A>\n</A>" {
		t.Errorf("originalXml = %q, want newline-normalized input", env["originalXml"])
	}
	if !strings.Contains(got, `"originalXml": "<A>\n</A>"`) {
		t.Errorf("TryConvert() = %s, want unescaped XML in originalXml", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("envelope ends with a newline")
	}

	if c.Convert("<A/>") == "" {
		t.Error("Convert() returned empty string")
	}
}

func TestConverterDefaultEnginesOnGarbage(t *testing.T) {
	got := NewConverter().Convert("<<<not xml")
	if !strings.HasPrefix(got, "{") {
		t.Errorf("Convert() = %q, want a JSON object", got)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Errorf("Convert() output is not JSON: %v", err)
	}
}

func TestMxjEngine(t *testing.T) {
	got, err := MxjEngine{}.XMLToJSON(`<A><B Value="1"/></A>`)
	if err != nil {
		t.Fatalf("XMLToJSON() error = %v", err)
	}
	if !strings.Contains(got, `"A"`) || !strings.Contains(got, `"B"`) {
		t.Errorf("XMLToJSON() = %s", got)
	}
}
