package walker

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWalkFlat(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"a.html":     []byte("<html>a</html>"),
		"b.xhtml":    []byte("<html>b</html>"),
		"readme.txt": []byte("ignore me"),
	})
	seen := map[string]string{}
	err := Walk(bytes.NewReader(data), int64(len(data)), func(d Document) error {
		seen[d.Name] = string(d.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 documents, got %d: %v", len(seen), seen)
	}
	if seen["a.html"] != "<html>a</html>" {
		t.Errorf("a.html content = %q", seen["a.html"])
	}
}

func TestWalkNested(t *testing.T) {
	inner := buildZip(t, map[string][]byte{
		"accounts.htm": []byte("<html>inner</html>"),
	})
	outer := buildZip(t, map[string][]byte{
		"Accounts_Bulk_Data-2024-01-15.zip": inner,
		"top.html":                          []byte("<html>top</html>"),
		"broken.zip":                        []byte("not a zip at all"),
	})
	var names []string
	err := Walk(bytes.NewReader(outer), int64(len(outer)), func(d Document) error {
		names = append(names, d.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := map[string]bool{
		"Accounts_Bulk_Data-2024-01-15.zip::accounts.htm": true,
		"top.html": true,
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 documents, got %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected document identity %q", n)
		}
	}
}

func TestWalkCorruptArchive(t *testing.T) {
	data := []byte("definitely not a zip")
	err := Walk(bytes.NewReader(data), int64(len(data)), func(Document) error { return nil })
	if err == nil {
		t.Fatal("a corrupt top-level archive should error")
	}
}
