package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/echogram/api/internal/auth"
	"github.com/echogram/api/internal/client"
	"github.com/echogram/api/internal/handler"
	"github.com/echogram/api/internal/middleware"
	"github.com/echogram/api/internal/pipeline"
	"github.com/echogram/api/internal/service"
	"github.com/echogram/api/internal/store"
	"github.com/echogram/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

const testSceneJSON = `{
	"scene_description": "A rainy street at dusk.",
	"vibe": "hazy electric solitude",
	"emotion": "bittersweet longing",
	"ambient_sound_associations": ["rain on umbrellas"]
}`

const testObjectJSON = `{
	"audio_type": "music",
	"mood": {"primary": "wistful", "secondary": "hopeful"},
	"energy": 0.6,
	"tempo": "medium",
	"density": "dense",
	"texture": ["grainy"],
	"sound_references": ["rain on glass"],
	"duration_seconds": 18,
	"bpm": 120,
	"musical_key": "A minor",
	"confidence": 0.8
}`

const testEnhancementJSON = `{
	"emotional_intent": "Amplify the melancholy",
	"visual_directive": "Deep amber tones",
	"morphing_prompt": "Deepen the shadows and bloom the highlights.",
	"style_reference": "Polaroid expired film"
}`

// stubChat answers the vision call with a canned scene and routes text calls
// by token budget: the morph branch asks for 512 tokens, synthesis for 1024.
type stubChat struct{}

func (s *stubChat) ChatJSON(ctx context.Context, req *client.ChatJSONRequest) (string, error) {
	if req.MaxTokens == 512 {
		return testEnhancementJSON, nil
	}
	return testObjectJSON, nil
}

func (s *stubChat) ChatJSONImage(ctx context.Context, req *client.ChatJSONRequest, image []byte, contentType string) (string, error) {
	return testSceneJSON, nil
}

type stubEditor struct{}

func (s *stubEditor) EditImage(ctx context.Context, imagePNG []byte, prompt string) ([]byte, error) {
	return []byte("morphed-png"), nil
}

type stubMusic struct {
	planErr error
}

func (s *stubMusic) PlanComposition(ctx context.Context, req *client.PlanRequest) (*client.CompositionPlan, error) {
	if s.planErr != nil {
		return nil, s.planErr
	}
	return &client.CompositionPlan{Raw: json.RawMessage(`{"sections":[]}`)}, nil
}

func (s *stubMusic) RenderComposition(ctx context.Context, plan *client.CompositionPlan) ([]byte, error) {
	return []byte("mp3-bytes"), nil
}

// syncEnqueuer runs the generation pipeline inline instead of dispatching to
// asynq, so a submission is fully processed by the time the request returns.
type syncEnqueuer struct {
	worker *worker.GenerateWorker
}

func (s *syncEnqueuer) EnqueueGenerate(_ context.Context, entityID string, attempt int) error {
	return s.worker.Run(context.Background(), entityID, attempt)
}

// testApp holds all components needed for testing.
type testApp struct {
	app   *fiber.App
	store *store.MemoryStore
	chat  *stubChat
	music *stubMusic
}

// setupApp creates a Fiber app wired like main.go, but on an in-memory store
// with stubbed external clients and an inline worker.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	st := store.NewMemoryStore()
	validate := validator.New()

	chat := &stubChat{}
	music := &stubMusic{}

	analyzer := pipeline.NewAnalyzer(chat, "vision-model", time.Second)
	synthesizer := pipeline.NewSynthesizer(chat, "fast-model", time.Second)
	morpher := pipeline.NewMorpher(chat, &stubEditor{}, "vision-model", time.Second)

	enqueuer := &syncEnqueuer{}
	generationService := service.NewGenerationService(st, enqueuer)
	enqueuer.worker = worker.NewGenerateWorker(st, analyzer, synthesizer, morpher, music, nil, nil)

	postHandler := handler.NewPostHandler(generationService, validate)
	commentHandler := handler.NewCommentHandler(generationService, validate, postHandler)
	mediaHandler := handler.NewMediaHandler(generationService)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Legacy HMAC auth only; no rate limiter so tests never need Redis.
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 12 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai":     false,
				"elevenlabs": false,
				"r2":         false,
				"auth":       true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	app.Get("/api/posts", postHandler.Feed)
	app.Get("/api/posts/:postId", postHandler.Get)
	app.Get("/api/posts/:postId/status", postHandler.Status)
	app.Get("/api/posts/:postId/comments", commentHandler.List)
	app.Get("/api/comments/:commentId/status", commentHandler.Status)
	app.Get("/api/images/:id", mediaHandler.Image)
	app.Get("/api/audio/:id", mediaHandler.Audio)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/posts", postHandler.Create)
	api.Post("/posts/:postId/recreate", postHandler.Recreate)
	api.Delete("/posts/:postId", postHandler.Delete)
	api.Post("/posts/:postId/comments", commentHandler.Create)
	api.Post("/comments/:commentId/recreate", commentHandler.Recreate)
	api.Delete("/posts/:postId/comments/:commentId", commentHandler.Delete)

	return &testApp{app: app, store: st, chat: chat, music: music}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "echogram-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// testImagePNG returns a small valid PNG for submissions.
func testImagePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

const validSquigglePoints = `[{"x":0.1,"y":0.1,"t":0},{"x":0.9,"y":0.9,"t":800}]`

// buildSubmission assembles the multipart form of a post or comment:
// color_hex, squiggle_points, and an image part with an explicit content type.
func buildSubmission(t *testing.T, colorHex, points string, imageData []byte, imageType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if colorHex != "" {
		if err := mw.WriteField("color_hex", colorHex); err != nil {
			t.Fatalf("failed to build form: %v", err)
		}
	}
	if points != "" {
		if err := mw.WriteField("squiggle_points", points); err != nil {
			t.Fatalf("failed to build form: %v", err)
		}
	}
	if imageData != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
		header.Set("Content-Type", imageType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to build form: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("failed to build form: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to build form: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// doRequest performs an HTTP request against the test app.
func doRequest(app *fiber.App, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

// submitPost performs an authenticated post submission with default inputs.
func submitPost(t *testing.T, ta *testApp, userID string) map[string]interface{} {
	t.Helper()
	body, contentType := buildSubmission(t, "#4477aa", validSquigglePoints, testImagePNG(t), "image/png")
	resp, err := doRequest(ta.app, http.MethodPost, "/api/posts", body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
		"Content-Type":  contentType,
	})
	if err != nil {
		t.Fatalf("submit post: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	return parseJSON(t, resp)
}

// submitComment performs an authenticated comment submission.
func submitComment(t *testing.T, ta *testApp, userID, postID string) (*http.Response, error) {
	t.Helper()
	body, contentType := buildSubmission(t, "#aa4477", validSquigglePoints, testImagePNG(t), "image/png")
	return doRequest(ta.app, http.MethodPost, fmt.Sprintf("/api/posts/%s/comments", postID), body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
		"Content-Type":  contentType,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

var errMusicDown = errors.New("music service unavailable")
