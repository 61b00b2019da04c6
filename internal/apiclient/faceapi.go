package apiclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"rollcall/internal/apperr"
	"rollcall/internal/model"
)

// FaceAPI calls the standalone face registration/recognition service used
// by the demo front-end. It shares transport and error handling with Client
// but speaks the service's {success, error} envelope.
type FaceAPI struct {
	c *Client
}

// NewFaceAPI creates a face API client.
func NewFaceAPI(baseURL string, timeout time.Duration, logger *slog.Logger) *FaceAPI {
	return &FaceAPI{c: New(baseURL, timeout, logger)}
}

type faceEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (e faceEnvelope) result() (bool, string) { return e.Success, e.Error }

type statsResponse struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	RegisteredFaces int      `json:"registered_faces"`
	UniquePeople    int      `json:"unique_people"`
	People          []string `json:"people"`
}

type faceMessageResponse struct {
	faceEnvelope
	Message string `json:"message"`
}

type recognizeResponse struct {
	faceEnvelope
	Recognized bool    `json:"recognized"`
	Name       *string `json:"name"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

type listResponse struct {
	faceEnvelope
	People       []model.PersonSamples `json:"people"`
	TotalSamples int                   `json:"total_samples"`
	TotalPeople  int                   `json:"total_people"`
}

type deleteResponse struct {
	faceEnvelope
	Message        string `json:"message"`
	RemovedSamples int    `json:"removed_samples"`
}

// Stats returns the service status and gallery counters.
func (f *FaceAPI) Stats(ctx context.Context) (model.FaceStats, error) {
	req, err := f.c.newRequest(ctx, http.MethodGet, "/", "", nil, "")
	if err != nil {
		return model.FaceStats{}, apperr.Connection("face stats", err)
	}
	var out statsResponse
	status, err := f.c.send(req, "face stats", &out)
	if err != nil {
		return model.FaceStats{}, err
	}
	if status >= 300 {
		return model.FaceStats{}, apperr.Rejected("face stats", status, out.Message)
	}
	return model.FaceStats{
		Status:          out.Status,
		Message:         out.Message,
		RegisteredFaces: out.RegisteredFaces,
		UniquePeople:    out.UniquePeople,
		People:          out.People,
	}, nil
}

// Register enrolls img under name.
func (f *FaceAPI) Register(ctx context.Context, name string, img Image) (string, error) {
	var out faceMessageResponse
	if err := f.c.doMultipart(ctx, "face register", "/register", "", map[string]string{"name": name}, "image", img, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Recognize matches img against the gallery. An unrecognized face is a
// successful call with Recognized false.
func (f *FaceAPI) Recognize(ctx context.Context, img Image) (model.Recognition, error) {
	var out recognizeResponse
	if err := f.c.doMultipart(ctx, "face recognize", "/recognize", "", nil, "image", img, &out); err != nil {
		return model.Recognition{}, err
	}
	rec := model.Recognition{
		Recognized: out.Recognized,
		Confidence: out.Confidence,
		Message:    out.Message,
	}
	if out.Name != nil {
		rec.Name = *out.Name
	}
	return rec, nil
}

// List returns every enrolled person with their sample counts.
func (f *FaceAPI) List(ctx context.Context) ([]model.PersonSamples, error) {
	var out listResponse
	if err := f.c.doJSON(ctx, "face list", http.MethodGet, "/list", "", nil, &out); err != nil {
		return nil, err
	}
	return out.People, nil
}

// Delete removes every sample stored under name.
func (f *FaceAPI) Delete(ctx context.Context, name string) (string, error) {
	var out deleteResponse
	if err := f.c.doJSON(ctx, "face delete", http.MethodDelete, "/delete/"+url.PathEscape(name), "", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
