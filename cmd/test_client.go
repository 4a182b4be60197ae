// Command test_client exercises a running geminichat instance over HTTP:
// health, a chat round trip (twice, to show the reply cache), the streaming
// variant, the GET form of the chat endpoint, model discovery, and the
// license listing. Useful for smoke testing a deployment by hand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geminichat/api"
)

var baseURL = flag.String("base-url", "http://localhost:3000", "geminichat instance to exercise")

func main() {
	flag.Parse()
	client := &http.Client{Timeout: 2 * time.Minute}

	log.Printf("Exercising geminichat at %s", *baseURL)

	checkHealth(client)

	log.Println("\n--- Chat round trip (first request goes upstream) ---")
	first := postChat(client, "Write a haiku about API key rotation", nil)

	log.Println("\n--- Same request again (should be served from cache) ---")
	postChat(client, "Write a haiku about API key rotation", nil)

	if first != nil {
		log.Println("\n--- Follow-up with history via GET query parameters ---")
		getChat(client, "Now explain it in one sentence", []api.HistoryItem{
			{Role: "user", Parts: []api.PartItem{{Text: "Write a haiku about API key rotation"}}},
			first.NextHistoryItem,
		})
	}

	log.Println("\n--- Streaming chat ---")
	streamChat(client, "Tell me a short story about a round-robin scheduler")

	log.Println("\n--- Model discovery ---")
	listModels(client)

	log.Println("\n--- License pool (rotation spread) ---")
	listLicenses(client)
}

func checkHealth(client *http.Client) {
	resp, err := client.Get(*baseURL + "/health")
	if err != nil {
		log.Fatalf("ERROR: health check failed: %v", err)
	}
	defer resp.Body.Close()

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		log.Fatalf("ERROR: decoding health response: %v", err)
	}
	log.Printf("Health: ok=%v model=%s apiKeys=%d cacheSize=%d",
		health.OK, health.Model, health.APIKeysCount, health.CacheSize)
}

func postChat(client *http.Client, message string, history []api.HistoryItem) *api.ChatResponse {
	payload, _ := json.Marshal(api.ChatRequestBody{Message: message, History: history})
	resp, err := client.Post(*baseURL+"/api/chat", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		log.Printf("WARN: chat request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logErrorResponse("chat", resp)
		return nil
	}
	var chat api.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		log.Printf("WARN: decoding chat response: %v", err)
		return nil
	}
	log.Printf("Reply (model=%s tokens=%d cached=%v):\n%s", chat.Model, chat.TokensUsed, chat.Cached, chat.Reply)
	return &chat
}

func getChat(client *http.Client, message string, history []api.HistoryItem) {
	rawHistory, _ := json.Marshal(history)
	params := url.Values{}
	params.Set("message", message)
	params.Set("history", string(rawHistory))

	resp, err := client.Get(*baseURL + "/api/chat?" + params.Encode())
	if err != nil {
		log.Printf("WARN: GET chat request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logErrorResponse("GET chat", resp)
		return
	}
	var chat api.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		log.Printf("WARN: decoding GET chat response: %v", err)
		return
	}
	log.Printf("Reply (model=%s cached=%v):\n%s", chat.Model, chat.Cached, chat.Reply)
}

func streamChat(client *http.Client, message string) {
	payload, _ := json.Marshal(api.ChatRequestBody{Message: message, Stream: true})
	resp, err := client.Post(*baseURL+"/api/chat", "application/json", strings.NewReader(string(payload)))
	if err != nil {
		log.Printf("WARN: stream request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logErrorResponse("stream", resp)
		return
	}

	// Count raw reads to show the reply really arrives incrementally.
	var raw strings.Builder
	buf := make([]byte, 512)
	chunks := 0
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunks++
			raw.Write(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("WARN: reading stream: %v", err)
			}
			break
		}
	}

	text, metaPart, found := strings.Cut(raw.String(), "\n"+api.StreamMetadataMarker+"\n")
	log.Printf("Streamed reply in %d reads:\n%s", chunks, text)
	if !found {
		log.Println("WARN: stream ended without a metadata trailer")
		return
	}
	var meta api.StreamMetadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(metaPart)), &meta); err != nil {
		log.Printf("WARN: parsing stream metadata: %v", err)
		return
	}
	log.Printf("Stream metadata: model=%s tokens=%d cached=%v", meta.Model, meta.TokensUsed, meta.Cached)
}

func listModels(client *http.Client) {
	resp, err := client.Get(*baseURL + "/api/models")
	if err != nil {
		log.Printf("WARN: models request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logErrorResponse("models", resp)
		return
	}
	var models api.ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		log.Printf("WARN: decoding models response: %v", err)
		return
	}
	log.Printf("Upstream exposes %d models", models.Count)
	for i, m := range models.Models {
		if i == 5 {
			log.Printf("  ... and %d more", models.Count-5)
			break
		}
		log.Printf("  %s (%s)", m.Name, m.DisplayName)
	}
}

func listLicenses(client *http.Client) {
	resp, err := client.Get(*baseURL + "/api/licenses")
	if err != nil {
		log.Printf("WARN: licenses request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logErrorResponse("licenses", resp)
		return
	}
	var licenses api.LicensesResponse
	if err := json.NewDecoder(resp.Body).Decode(&licenses); err != nil {
		log.Printf("WARN: decoding licenses response: %v", err)
		return
	}
	log.Printf("%d API keys pooled:", licenses.Count)
	for _, l := range licenses.Licenses {
		log.Printf("  %s enabled=%v requests=%d successRate=%.1f%% avgLatency=%.1fms",
			l.KeyAlias, l.IsEnabled, l.Requests, l.SuccessRatePercent, l.AverageLatencyMs)
	}
}

func logErrorResponse(operation string, resp *http.Response) {
	var envelope api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		log.Printf("WARN: %s returned %s", operation, resp.Status)
		return
	}
	log.Printf("WARN: %s returned %s: %s", operation, resp.Status,
		fmt.Sprintf("%s (%s)", envelope.Error.Message, envelope.Error.Code))
}
