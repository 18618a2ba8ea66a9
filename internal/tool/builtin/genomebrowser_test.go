// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trna-chat/internal/tool"
)

func newUCSCStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/getData/sequence":
			fmt.Fprint(w, `{"dna":"ACGTACGTACGTACGTACGT"}`)
		case "/getData/track":
			track := r.URL.Query().Get("track")
			if track == "tRNAs" {
				fmt.Fprintf(w, `{"%s":[{"chromStart":1005,"chromEnd":1012,"name":"tRNA-Ala","score":980}]}`, track)
			} else {
				fmt.Fprintf(w, `{"%s":[]}`, track)
			}
		case "/list/tracks":
			genome := r.URL.Query().Get("genome")
			fmt.Fprintf(w, `{"%s":{"knownGene":{},"tRNAs":{},"rmsk":{}}}`, genome)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGenomeBrowser_ViewRegion(t *testing.T) {
	server := newUCSCStub(t)
	defer server.Close()

	browser := NewGenomeBrowser(server.URL, 0)
	resp := browser.Invoke(context.Background(), tool.Request{
		Method: "view_region",
		Params: map[string]any{
			"genome": "hg19",
			"chrom":  "chr6",
			"start":  float64(1000),
			"end":    float64(1020),
			"tracks": []any{"tRNAs", "knownGene"},
		},
	})
	if !resp.OK() {
		t.Fatalf("view_region failed: %+v", resp.Err)
	}

	if resp.Data["sequence"] != "ACGTACGTACGTACGTACGT" {
		t.Errorf("sequence: got %v", resp.Data["sequence"])
	}
	features := resp.Data["features"].([]map[string]any)
	if len(features) != 1 {
		t.Fatalf("features: got %d", len(features))
	}
	if features[0]["name"] != "tRNA-Ala" || features[0]["track"] != "tRNAs" {
		t.Errorf("feature: got %+v", features[0])
	}

	annotated := resp.Data["annotated_sequence"].(string)
	if !strings.Contains(annotated, "[id00001-tRNAs:1005-1012:tRNA-Ala|") {
		t.Errorf("annotated sequence missing open marker: %q", annotated)
	}
	if !strings.Contains(annotated, "|id00001-tRNAs:1005-1012:tRNA-Ala]") {
		t.Errorf("annotated sequence missing close marker: %q", annotated)
	}

	link := resp.Data["browser_link"].(string)
	if !strings.Contains(link, "db=hg19") || !strings.Contains(link, "position=chr6:1000-1020") {
		t.Errorf("browser link: %q", link)
	}
	if !strings.Contains(link, "tRNAs=pack") {
		t.Errorf("browser link missing track: %q", link)
	}
}

func TestGenomeBrowser_ViewRegionValidation(t *testing.T) {
	browser := NewGenomeBrowser("http://127.0.0.1:0", 0)

	resp := browser.Invoke(context.Background(), tool.Request{
		Method: "view_region",
		Params: map[string]any{"genome": "hg19", "start": float64(10), "end": float64(20)},
	})
	if resp.OK() || resp.Err.Code != tool.CodeInvalidParam {
		t.Errorf("missing chrom: got %+v", resp)
	}

	resp = browser.Invoke(context.Background(), tool.Request{
		Method: "view_region",
		Params: map[string]any{"chrom": "chr1", "start": float64(20), "end": float64(10)},
	})
	if resp.OK() || resp.Err.Code != tool.CodeInvalidParam {
		t.Errorf("inverted region: got %+v", resp)
	}
}

func TestGenomeBrowser_ListTracks(t *testing.T) {
	server := newUCSCStub(t)
	defer server.Close()

	browser := NewGenomeBrowser(server.URL, 0)
	resp := browser.Invoke(context.Background(), tool.Request{
		Method: "list_tracks",
		Params: map[string]any{"genome": "hg38"},
	})
	if !resp.OK() {
		t.Fatalf("list_tracks failed: %+v", resp.Err)
	}
	tracks := resp.Data["tracks"].([]string)
	want := []string{"knownGene", "rmsk", "tRNAs"}
	if len(tracks) != len(want) {
		t.Fatalf("tracks: got %v", tracks)
	}
	for i := range want {
		if tracks[i] != want[i] {
			t.Errorf("tracks[%d]: got %q, want %q", i, tracks[i], want[i])
		}
	}
}

func TestGenomeBrowser_FeatureCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/getData/sequence":
			fmt.Fprintf(w, `{"dna":"%s"}`, strings.Repeat("ACGT", 1000))
		case "/getData/track":
			track := r.URL.Query().Get("track")
			var items []string
			for i := 0; i < 80; i++ {
				items = append(items, fmt.Sprintf(`{"chromStart":%d,"chromEnd":%d,"name":"f%d"}`, i*10, i*10+5, i))
			}
			fmt.Fprintf(w, `{"%s":[%s]}`, track, strings.Join(items, ","))
		}
	}))
	defer server.Close()

	browser := NewGenomeBrowser(server.URL, 0)
	resp := browser.Invoke(context.Background(), tool.Request{
		Method: "view_region",
		Params: map[string]any{
			"chrom":  "chr1",
			"start":  float64(0),
			"end":    float64(4000),
			"tracks": []any{"knownGene"},
		},
	})
	if !resp.OK() {
		t.Fatalf("view_region failed: %+v", resp.Err)
	}

	features := resp.Data["features"].([]map[string]any)
	if len(features) != defaultMaxFeatures {
		t.Errorf("feature ceiling: got %d, want %d", len(features), defaultMaxFeatures)
	}
	if got := len(resp.Data["sequence"].(string)); got != maxSequenceChars {
		t.Errorf("sequence ceiling: got %d, want %d", got, maxSequenceChars)
	}
	if resp.Data["truncated"] != true {
		t.Error("expected truncated flag")
	}
}

func TestGenomeBrowser_ConfiguredFeatureCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/getData/sequence":
			fmt.Fprint(w, `{"dna":"ACGTACGTACGTACGTACGT"}`)
		case "/getData/track":
			track := r.URL.Query().Get("track")
			var items []string
			for i := 0; i < 10; i++ {
				items = append(items, fmt.Sprintf(`{"chromStart":%d,"chromEnd":%d,"name":"f%d"}`, i, i+2, i))
			}
			fmt.Fprintf(w, `{"%s":[%s]}`, track, strings.Join(items, ","))
		}
	}))
	defer server.Close()

	browser := NewGenomeBrowser(server.URL, 3)
	resp := browser.Invoke(context.Background(), tool.Request{
		Method: "view_region",
		Params: map[string]any{
			"chrom":  "chr1",
			"start":  float64(0),
			"end":    float64(20),
			"tracks": []any{"knownGene"},
		},
	})
	if !resp.OK() {
		t.Fatalf("view_region failed: %+v", resp.Err)
	}
	features := resp.Data["features"].([]map[string]any)
	if len(features) != 3 {
		t.Errorf("configured ceiling: got %d features, want 3", len(features))
	}
	if resp.Data["truncated"] != true {
		t.Error("expected truncated flag")
	}

	// 越界配置回落到硬上限
	if got := NewGenomeBrowser(server.URL, 500).maxFeatures; got != defaultMaxFeatures {
		t.Errorf("out-of-range maxFeatures: got %d, want %d", got, defaultMaxFeatures)
	}
}

func TestGenomeBrowser_UnknownMethod(t *testing.T) {
	browser := NewGenomeBrowser("http://127.0.0.1:0", 0)
	resp := browser.Invoke(context.Background(), tool.Request{Method: "screenshot"})
	if resp.OK() || resp.Err.Code != tool.CodeInvalidMethod {
		t.Errorf("unknown method: got %+v", resp)
	}
}
