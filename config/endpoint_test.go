package config

import (
	"os"
	"path/filepath"
	"testing"

	"alertwire/message"
	"alertwire/message/messagetest"
	"alertwire/msgqueue"
	"alertwire/transport"
	_ "alertwire/transport/file"
)

func TestLoadEndpoint_MergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
name: mailbox-in
url: file:///var/spool/alerts
content_type: application/json
parameters:
  interval: 5
  permissions: 0o640
`)
	path := filepath.Join(dir, "endpoint.yml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write endpoint: %v", err)
	}

	t.Setenv("ALERTWIRE_ENDPOINT__URL", "file:///var/spool/alerts-override")

	e, err := LoadEndpoint(path)
	if err != nil {
		t.Fatalf("LoadEndpoint: %v", err)
	}
	if e.Name != "mailbox-in" {
		t.Fatalf("want name mailbox-in, got %q", e.Name)
	}
	if e.URL != "file:///var/spool/alerts-override" {
		t.Fatalf("env override not applied, got %q", e.URL)
	}
	if e.ContentType != "application/json" {
		t.Fatalf("unexpected content_type %q", e.ContentType)
	}
	if len(e.Parameters) != 2 {
		t.Fatalf("want 2 parameters, got %v", e.Parameters)
	}
}

func TestLoadEndpoint_EnvParameter(t *testing.T) {
	messagetest.Register()
	mailbox := t.TempDir()
	dir := t.TempDir()
	raw := []byte("schema_version: v1\nname: mailbox-in\nurl: file://" + mailbox + "\ncontent_type: application/json\n")
	path := filepath.Join(dir, "endpoint.yml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write endpoint: %v", err)
	}

	t.Setenv("ALERTWIRE_ENDPOINT__PARAMETERS__INTERVAL", "5")

	e, err := LoadEndpoint(path)
	if err != nil {
		t.Fatalf("LoadEndpoint: %v", err)
	}
	if e.Parameters["interval"] != "5" {
		t.Fatalf("env parameter not merged, got %v", e.Parameters)
	}

	tr, err := e.Open(nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, err := tr.GetParameter("interval")
	if err != nil {
		t.Fatalf("GetParameter: %v", err)
	}
	if v != float64(5) {
		t.Fatalf("want interval 5, got %v (%T)", v, v)
	}
}

func TestLoadEndpoint_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoint.yml")
	if err := os.WriteFile(path, []byte("schema_version: v999\nurl: file:///x\n"), 0o644); err != nil {
		t.Fatalf("write endpoint: %v", err)
	}
	if _, err := LoadEndpoint(path); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoadEndpoint_MissingURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoint.yml")
	if err := os.WriteFile(path, []byte("name: broken\n"), 0o644); err != nil {
		t.Fatalf("write endpoint: %v", err)
	}
	if _, err := LoadEndpoint(path); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
endpoints:
  - name: mailbox-in
    url: file:///var/spool/alerts
  - name: broker-out
    url: kafka://broker:9092
    parameters:
      producer_topic: alerts
`)
	path := filepath.Join(dir, "profile.yml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if len(p.Endpoints) != 2 {
		t.Fatalf("want 2 endpoints, got %d", len(p.Endpoints))
	}
	if p.Endpoints[1].Parameters["producer_topic"] != "alerts" {
		t.Fatalf("unexpected parameters: %v", p.Endpoints[1].Parameters)
	}
}

func TestLoadProfile_Rejections(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad_schema.yml": "schema_version: v2\nendpoints: [{name: a, url: file:///x}]\n",
		"empty.yml":      "schema_version: v1\nendpoints: []\n",
		"dup_names.yml":  "endpoints: [{name: a, url: file:///x}, {name: a, url: file:///y}]\n",
		"bad_url.yml":    "endpoints: [{name: a, url: ':'}]\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := LoadProfile(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

// recordingTransport captures applied parameters for Open tests.
type recordingTransport struct {
	applied []string
	fail    string
}

func (r *recordingTransport) SetParameter(name string, value any) error {
	if name == r.fail {
		return transport.ErrUnknownParameter
	}
	r.applied = append(r.applied, name)
	return nil
}
func (r *recordingTransport) GetParameter(string) (any, error)  { return nil, nil }
func (r *recordingTransport) SendMessage(message.Message) error { return nil }
func (r *recordingTransport) Start() error                      { return nil }
func (r *recordingTransport) Stop() error                       { return nil }

var lastRecording *recordingTransport

func init() {
	transport.Register("recording", func(string, *msgqueue.Queue[message.Message], string) (transport.Transport, error) {
		return lastRecording, nil
	})
}

func TestEndpoint_Open_AppliesParametersInOrder(t *testing.T) {
	lastRecording = &recordingTransport{}
	e := Endpoint{
		Name: "rec",
		URL:  "recording://x",
		Parameters: map[string]any{
			"c_last":  1,
			"a_first": 2,
			"b_mid":   3,
		},
	}
	tr, err := e.Open(nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := tr.(*recordingTransport)
	want := []string{"a_first", "b_mid", "c_last"}
	if len(rec.applied) != len(want) {
		t.Fatalf("applied %v, want %v", rec.applied, want)
	}
	for i := range want {
		if rec.applied[i] != want[i] {
			t.Fatalf("applied %v, want %v", rec.applied, want)
		}
	}
}

func TestEndpoint_Open_ParameterErrorAborts(t *testing.T) {
	lastRecording = &recordingTransport{fail: "bogus"}
	e := Endpoint{URL: "recording://x", Parameters: map[string]any{"bogus": 1}}
	if _, err := e.Open(nil); err == nil {
		t.Fatal("expected parameter error")
	}
}

func TestEndpoint_Open_UnknownScheme(t *testing.T) {
	e := Endpoint{URL: "nosuchscheme://x"}
	if _, err := e.Open(nil); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}
