// Package ai turns a canvas sketch into HTML/CSS through an
// OpenAI-compatible chat completion endpoint and streams the generated
// text back as plain text.
package ai

import (
	"bufio"
	"bytes"
	"compass/config"
	"compass/handlers/api/response"
	"compass/middleware"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const (
	defaultPrompt = "Generate a professional web design from this sketch."
	imageHint     = "Analyze this canvas image and translate visual elements (shapes, text, layouts) into structured HTML/CSS. Focus on responsive design with flex/grid."
	temperature   = 0.7
)

const systemPrompt = `You are a UI/UX code generator. Your ONLY job is to generate HTML/CSS code immediately without any explanations, questions, or commentary.

RULES:
1. Never ask questions. Generate code directly.
2. Never explain or describe. Output only code.
3. Translate the visual elements of the sketch into code without discussing them.

OUTPUT FORMAT:
- Start with a <style> tag containing CSS (modern CSS, Tailwind classes or inline styles).
- Follow with the HTML structure: <header>, <main>, sections, <footer>.
- Make it responsive, accessible (ARIA) and mobile-first.
- Do not include <html> or <body> tags.

MAPPING:
- Shapes become cards, buttons and containers.
- Text becomes headings, paragraphs and labels.
- Layout is implemented with flexbox or grid.
- Apply a modern, professional look.`

var errInvalidRequest = errors.New("Invalid request format")

type LiteralType string

const (
	LiteralTypeText     LiteralType = "text"
	LiteralTypeImageURL LiteralType = "image_url"
	// LiteralTypeImage is the client-side shape {type:"image", image:"<url>"}.
	LiteralTypeImage LiteralType = "image"
)

// ImageURL details the URL and detail level of an image.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one part of a multi-part message.
type ContentPart struct {
	Type     LiteralType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *ImageURL   `json:"image_url,omitempty"`
	Image    string      `json:"image,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []ContentPart
}

type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateRequest accepts either a chat transcript or a canvas image with
// an optional prompt.
type GenerateRequest struct {
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	CanvasImage string `json:"canvasImage"`
	Prompt      string `json:"prompt"`
}

// FlusherWriter is a helper to ensure that data is flushed to the client for streaming
type FlusherWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw *FlusherWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// userMessage builds the single user turn sent upstream.
func (req GenerateRequest) userMessage() (ChatMessage, error) {
	switch {
	case len(req.Messages) > 0:
		last := req.Messages[len(req.Messages)-1]

		var text string
		if err := json.Unmarshal(last.Content, &text); err == nil {
			if strings.TrimSpace(text) == "" {
				text = defaultPrompt
			}
			return ChatMessage{Role: "user", Content: text}, nil
		}

		var parts []ContentPart
		if err := json.Unmarshal(last.Content, &parts); err != nil {
			return ChatMessage{}, errors.New("message content must be a string or a list of parts")
		}
		var texts []string
		var image string
		for _, p := range parts {
			switch p.Type {
			case LiteralTypeText:
				texts = append(texts, p.Text)
			case LiteralTypeImage:
				if image == "" {
					image = p.Image
				}
			case LiteralTypeImageURL:
				if image == "" && p.ImageURL != nil {
					image = p.ImageURL.URL
				}
			}
		}
		prompt := strings.Join(texts, " ")
		if strings.TrimSpace(prompt) == "" {
			prompt = defaultPrompt
		}
		return withImage(prompt, image), nil

	case req.CanvasImage != "":
		prompt := req.Prompt
		if strings.TrimSpace(prompt) == "" {
			prompt = defaultPrompt
		}
		image := req.CanvasImage
		if !strings.HasPrefix(image, "data:") && !strings.HasPrefix(image, "http") {
			image = "data:image/png;base64," + image
		}
		return withImage(prompt, image), nil
	}
	return ChatMessage{}, errInvalidRequest
}

func withImage(prompt, image string) ChatMessage {
	if image == "" {
		return ChatMessage{Role: "user", Content: prompt}
	}
	return ChatMessage{Role: "user", Content: []ContentPart{
		{Type: LiteralTypeText, Text: prompt + "\n\n" + imageHint},
		{Type: LiteralTypeImageURL, ImageURL: &ImageURL{URL: image}},
	}}
}

// HandleGenerate streams generated markup for the posted sketch.
func HandleGenerate(cfg config.AIConfig, client *http.Client) http.HandlerFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.APIKey == "" {
		logrus.Warn("OPENAI_API_KEY is not set. The design generator will not work.")
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			response.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}
		if cfg.APIKey == "" {
			response.Fail(w, r, http.StatusInternalServerError, "AI provider is not configured on the server")
			return
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Fail(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
		defer r.Body.Close()

		msg, err := req.userMessage()
		if err != nil {
			response.Fail(w, r, http.StatusBadRequest, err.Error())
			return
		}

		body, err := json.Marshal(ChatCompletionRequest{
			Model:       cfg.Model,
			Messages:    []ChatMessage{{Role: "system", Content: systemPrompt}, msg},
			Stream:      true,
			Temperature: temperature,
		})
		if err != nil {
			response.Fail(w, r, http.StatusInternalServerError, "Failed to build request")
			return
		}

		proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			response.Fail(w, r, http.StatusInternalServerError, "Failed to create proxy request")
			return
		}
		proxyReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		proxyReq.Header.Set("Content-Type", "application/json")
		proxyReq.Header.Set("Accept", "text/event-stream")

		log := logrus.WithFields(logrus.Fields{"user_id": userID, "op": "ai_generate"})
		resp, err := client.Do(proxyReq)
		if err != nil {
			log.WithError(err).Error("Failed to reach AI provider")
			response.Fail(w, r, http.StatusBadGateway, "Failed to communicate with AI provider")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			log.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(detail)}).Error("AI provider rejected request")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.ErrorResponse{Error: "AI provider returned an error"})
			return
		}

		flusher, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fw := &FlusherWriter{w: w, f: flusher}
		if err := relay(fw, resp.Body); err != nil {
			log.WithError(err).Warn("Error streaming response from AI provider")
		}
	}
}

// relay copies the content deltas of an SSE chat completion stream to w.
func relay(w io.Writer, stream io.Reader) error {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			if _, err := io.WriteString(w, c.Delta.Content); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
