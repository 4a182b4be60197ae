package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"geminichat"
)

// ChatHandler returns an http.HandlerFunc serving the chat endpoint on both
// POST (JSON body) and GET (query parameters, with history as a URL-encoded
// JSON array). Non-streaming requests get a single JSON document; streaming
// requests get a text/plain body of raw chunks followed by the
// ---METADATA--- marker and a JSON metadata blob.
//
// Dependencies:
//   - svc *geminichat.Service: the chat service owning validation, caching,
//     credential rotation, and the upstream call.
//
// HTTP Responses:
//   - 200 OK: reply produced (or served from cache, marked cached).
//   - 400 Bad Request: validation failure, malformed body or query, or an
//     upstream safety/malformed-request rejection.
//   - 401/429/500/503: mapped upstream and pool failures.
func ChatHandler(svc *geminichat.Service, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("handler", "chat").Logger()
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			log.Error().Msg("chat service not initialized")
			writeError(w, http.StatusInternalServerError, CodeInternalError, "service not available")
			return
		}

		var body ChatRequestBody
		var err error
		switch r.Method {
		case http.MethodPost:
			body, err = decodeChatBody(r)
		case http.MethodGet:
			body, err = decodeChatQuery(r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
			return
		}
		if err != nil {
			writeServiceError(w, err, svc.Config().Verbose())
			return
		}

		req := toChatRequest(body)
		if body.Stream {
			streamChat(w, r, svc, log, req)
			return
		}

		reply, err := svc.Chat(r.Context(), req)
		if err != nil {
			writeServiceError(w, err, svc.Config().Verbose())
			return
		}
		writeJSON(w, http.StatusOK, chatResponse(reply))
	}
}

// streamChat delivers the reply incrementally: raw text chunks flushed as
// they arrive, then the metadata trailer. Failures before the first chunk
// still produce a clean JSON error; once text is on the wire the stream is
// simply cut short and the failure logged.
func streamChat(w http.ResponseWriter, r *http.Request, svc *geminichat.Service, log zerolog.Logger, req geminichat.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "streaming is not supported on this connection")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	wroteChunk := false
	emit := func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
		wroteChunk = true
		return nil
	}

	reply, err := svc.ChatStream(r.Context(), req, emit)
	if err != nil {
		if !wroteChunk {
			writeServiceError(w, err, svc.Config().Verbose())
			return
		}
		log.Error().Err(err).Str("requestId", GetRequestID(r.Context())).Msg("stream aborted mid-delivery")
		return
	}

	meta := StreamMetadata{
		NextHistoryItem: historyItemFromTurn(reply.NextTurn()),
		Safety:          reply.Safety,
		Timestamp:       reply.Timestamp,
		Model:           reply.Model,
		TokensUsed:      reply.TokensUsed,
		Cached:          reply.Cached,
	}
	if _, err := io.WriteString(w, "\n"+StreamMetadataMarker+"\n"); err != nil {
		log.Error().Err(err).Msg("writing metadata marker")
		return
	}
	if err := json.NewEncoder(w).Encode(meta); err != nil {
		log.Error().Err(err).Msg("writing stream metadata")
		return
	}
	flusher.Flush()
}

// decodeChatBody parses the JSON request body of a POST chat request.
func decodeChatBody(r *http.Request) (ChatRequestBody, error) {
	var body ChatRequestBody
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return body, geminichat.NewRequestError(CodeInvalidRequest, "reading request body: %v", err)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return body, geminichat.NewRequestError(CodeInvalidRequest, "request body is not valid JSON: %v", err)
	}
	return body, nil
}

// decodeChatQuery parses the query-parameter form of a GET chat request.
// The history parameter, when present, must be a URL-encoded JSON array in
// the same shape as the POST body's history field.
func decodeChatQuery(r *http.Request) (ChatRequestBody, error) {
	q := r.URL.Query()
	body := ChatRequestBody{
		Message: q.Get("message"),
		Stream:  parseBoolParam(q.Get("stream")),
	}
	if rawHistory := q.Get("history"); rawHistory != "" {
		if err := json.Unmarshal([]byte(rawHistory), &body.History); err != nil {
			return body, geminichat.NewRequestError(geminichat.CodeInvalidHistory, "history query parameter is not a valid JSON array: %v", err)
		}
	}
	return body, nil
}

func parseBoolParam(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// toChatRequest flattens the wire DTO into the service's request model.
func toChatRequest(body ChatRequestBody) geminichat.ChatRequest {
	req := geminichat.ChatRequest{
		Message: body.Message,
		Stream:  body.Stream,
	}
	for _, item := range body.History {
		turn := geminichat.Turn{Role: item.Role}
		for _, part := range item.Parts {
			turn.Parts = append(turn.Parts, part.Text)
		}
		req.History = append(req.History, turn)
	}
	return req
}

func chatResponse(reply *geminichat.Reply) ChatResponse {
	return ChatResponse{
		Reply:           reply.Text,
		NextHistoryItem: historyItemFromTurn(reply.NextTurn()),
		Safety:          reply.Safety,
		Timestamp:       reply.Timestamp,
		Model:           reply.Model,
		TokensUsed:      reply.TokensUsed,
		Cached:          reply.Cached,
	}
}

func historyItemFromTurn(turn geminichat.Turn) HistoryItem {
	item := HistoryItem{Role: turn.Role}
	for _, text := range turn.Parts {
		item.Parts = append(item.Parts, PartItem{Text: text})
	}
	return item
}
