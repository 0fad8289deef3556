package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"claimscompanion/backend/internal/checklist"
)

// Outcome is the verdict on one uploaded document, persisted against the
// document record (latest wins).
type Outcome struct {
	IsValid       bool                   `json:"is_valid"`
	Confidence    float64                `json:"confidence_score"`
	Issues        []string               `json:"issues"`
	Suggestions   []string               `json:"suggestions"`
	ExtractedData map[string]interface{} `json:"extracted_data"`
}

// Extractor is the OCR/text-extraction boundary.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Completer is the LLM boundary in JSON-object response mode.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) ([]byte, error)
}

// Validator judges an uploaded file against a checklist item. The AI path
// is the only source of nondeterminism; when it is unavailable or fails the
// validator degrades to deterministic basic checks.
type Validator struct {
	extractor Extractor
	completer Completer
}

func NewValidator(extractor Extractor, completer Completer) *Validator {
	return &Validator{extractor: extractor, completer: completer}
}

const (
	aiContentLimit      = 2000
	minImageTextChars   = 10
	minPDFTextChars     = 20
	cleanConfidence     = 0.8
	degradedConfidence  = 0.3
	defaultAIConfidence = 0.5
)

type extracted struct {
	text     string
	sizeMB   float64
	fileType string
	isImage  bool
	pages    int
	err      string
}

// Validate runs extraction, then AI validation when configured, falling
// back to basic checks. Never returns an error: failures become issues.
func (v *Validator) Validate(ctx context.Context, path string, item checklist.ItemSpec) Outcome {
	data := v.extract(ctx, path)

	// Images are allowed through with no extracted text so the size and
	// legibility checks still run; anything else with no text is unreadable.
	if data.err != "" || (!data.isImage && strings.TrimSpace(data.text) == "") {
		return Outcome{
			IsValid:       false,
			Confidence:    0,
			Issues:        []string{"Could not read document content"},
			Suggestions:   []string{"Please upload a clearer version or different file format"},
			ExtractedData: map[string]interface{}{},
		}
	}

	if v.completer != nil && item.Instruction != "" {
		if out, ok := v.aiValidate(ctx, data, item); ok {
			return out
		}
		slog.WarnContext(ctx, "ai validation unavailable, using basic checks", "item", item.Key)
	}

	return v.basicValidate(data, item)
}

func (v *Validator) extract(ctx context.Context, path string) extracted {
	data := extracted{fileType: strings.ToLower(filepath.Ext(path))}

	info, err := os.Stat(path)
	if err != nil {
		data.err = err.Error()
		return data
	}
	data.sizeMB = float64(info.Size()) / (1024 * 1024)

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		data.err = err.Error()
		return data
	}

	switch data.fileType {
	case ".txt":
		data.text = string(raw)
	case ".pdf":
		data.text = v.boundaryExtract(ctx, raw, "application/pdf")
	case ".jpg", ".jpeg", ".png", ".heic", ".webp":
		data.isImage = true
		data.text = v.boundaryExtract(ctx, raw, mimeForExt(data.fileType))
	default:
		// Unknown formats: treat bytes as text if mostly printable.
		if looksTextual(raw) {
			data.text = string(raw)
		}
	}
	return data
}

// boundaryExtract calls the OCR/extraction provider. Provider failure is a
// degraded extraction, not an error: validation continues on empty text.
func (v *Validator) boundaryExtract(ctx context.Context, raw []byte, mime string) string {
	if v.extractor == nil {
		return ""
	}
	text, err := v.extractor.ExtractText(ctx, raw, mime)
	if err != nil {
		slog.WarnContext(ctx, "text extraction failed", "mime", mime, "error", err)
		return ""
	}
	return text
}

type aiResponse struct {
	IsValid       *bool                  `json:"is_valid"`
	Confidence    *float64               `json:"confidence_score"`
	Issues        []string               `json:"issues"`
	Suggestions   []string               `json:"suggestions"`
	ExtractedInfo map[string]interface{} `json:"extracted_info"`
}

func (v *Validator) aiValidate(ctx context.Context, data extracted, item checklist.ItemSpec) (Outcome, bool) {
	content := data.text
	if len(content) > aiContentLimit {
		content = content[:aiContentLimit]
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"file_type":  data.fileType,
		"file_size":  fmt.Sprintf("%.1fMB", data.sizeMB),
		"is_image":   data.isImage,
		"page_count": data.pages,
	})

	system := "You are an insurance document validator. Analyze the document content " +
		"and validate it against the requirements. Respond in JSON with keys: " +
		`is_valid (bool), confidence_score (0.0-1.0), issues (list), suggestions (list), extracted_info (object).`
	user := fmt.Sprintf("Document type: %s\nValidation requirements: %s\n\nDocument content:\n%s\n\nDocument metadata: %s",
		item.Key, item.Instruction, content, meta)

	raw, err := v.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		return Outcome{}, false
	}

	var resp aiResponse
	if err := json.Unmarshal(stripFences(raw), &resp); err != nil {
		slog.WarnContext(ctx, "malformed ai validation response", "error", err)
		return Outcome{}, false
	}

	out := Outcome{
		Issues:        resp.Issues,
		Suggestions:   resp.Suggestions,
		ExtractedData: resp.ExtractedInfo,
		Confidence:    defaultAIConfidence,
	}
	if resp.IsValid != nil {
		out.IsValid = *resp.IsValid
	}
	if resp.Confidence != nil {
		out.Confidence = clamp01(*resp.Confidence)
	}
	if out.Issues == nil {
		out.Issues = []string{}
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	if out.ExtractedData == nil {
		out.ExtractedData = map[string]interface{}{}
	}
	return out, true
}

func (v *Validator) basicValidate(data extracted, item checklist.ItemSpec) Outcome {
	var issues, suggestions []string

	maxMB := item.MaxSizeMB
	if maxMB == 0 {
		maxMB = 10
	}
	if data.sizeMB > float64(maxMB) {
		issues = append(issues, fmt.Sprintf("File size (%.1fMB) exceeds limit (%dMB)", data.sizeMB, maxMB))
		suggestions = append(suggestions, "Please compress the file or upload a smaller version")
	}

	text := strings.TrimSpace(data.text)
	if data.isImage && len(text) < minImageTextChars {
		issues = append(issues, "Image appears to contain little readable text")
		suggestions = append(suggestions, "Please ensure the image is clear and well-lit")
	}
	if data.fileType == ".pdf" && len(text) < minPDFTextChars {
		issues = append(issues, "PDF appears to be scanned or contains little text")
		suggestions = append(suggestions, "Please ensure the PDF is readable or upload a clearer version")
	}

	valid := len(issues) == 0
	confidence := degradedConfidence
	if valid {
		confidence = cleanConfidence
		suggestions = []string{"Document appears to be readable"}
		issues = []string{}
	}

	return Outcome{
		IsValid:       valid,
		Confidence:    confidence,
		Issues:        issues,
		Suggestions:   suggestions,
		ExtractedData: map[string]interface{}{"text_length": len(text)},
	}
}

func mimeForExt(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// stripFences tolerates models wrapping JSON in markdown code fences.
func stripFences(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		s = bytes.TrimSuffix(bytes.TrimSpace(s), []byte("```"))
	}
	return s
}

func looksTextual(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	sample := raw
	if len(sample) > 512 {
		sample = sample[:512]
	}
	printable := 0
	for _, b := range sample {
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7f) {
			printable++
		}
	}
	return float64(printable)/float64(len(sample)) > 0.9
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
