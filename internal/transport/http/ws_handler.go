package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

const submitTimeout = 5 * time.Second

// WSHandler wires teacher consoles and student clients into the session flow.
type WSHandler struct {
	registry   *app.Registry
	roster     *app.Roster
	aggregator *app.Aggregator
	questions  app.QuestionRepository

	questionDuration time.Duration
	revealDelay      time.Duration

	upgrader websocket.Upgrader
}

func NewWSHandler(registry *app.Registry, roster *app.Roster, aggregator *app.Aggregator, questions app.QuestionRepository, questionDuration, revealDelay time.Duration) *WSHandler {
	if questionDuration <= 0 {
		questionDuration = app.DefaultQuestionDuration
	}
	if revealDelay <= 0 {
		revealDelay = app.DefaultRevealDelay
	}
	return &WSHandler{
		registry:         registry,
		roster:           roster,
		aggregator:       aggregator,
		questions:        questions,
		questionDuration: questionDuration,
		revealDelay:      revealDelay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinPayload struct {
	Code string `json:"code"`
}

type identifyPayload struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
}

type answerPayload struct {
	Option *int   `json:"option,omitempty"`
	Text   string `json:"text,omitempty"`
}

type createPayload struct {
	Level string `json:"level"`
}

type sessionPayload struct {
	SessionID string               `json:"sessionId"`
	Code      string               `json:"code"`
	Level     string               `json:"level"`
	Status    domain.SessionStatus `json:"status"`
}

type questionPayload struct {
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	ID       string              `json:"id"`
	Question string              `json:"question"`
	Options  []string            `json:"options"`
	Type     domain.QuestionType `json:"type"`
	Seconds  int                 `json:"seconds"`
}

type revealPayload struct {
	Index   int    `json:"index"`
	Correct bool   `json:"correct"`
	Answer  string `json:"answer"`
}

type waitingRoomPayload struct {
	WaitingPlayers []domain.WaitingPlayer `json:"waitingPlayers"`
}

type rankingsPayload struct {
	Entries []domain.RankingEntry `json:"entries"`
}

// ServeWS upgrades the request and dispatches on role (teacher or student).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = "student"
	}
	if role != "teacher" && role != "student" {
		http.Error(w, "role must be teacher or student", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := newWSClient(conn)
	defer client.close()

	if role == "teacher" {
		h.serveTeacher(r.Context(), client)
		return
	}
	h.serveStudent(r.Context(), client)
}

// wsClient serializes all websocket writes through a single goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan outboundMessage[any]
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan outboundMessage[any], 32),
		done: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case msg := <-c.send:
				if err := c.conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-c.done:
				return
			}
		}
	}()
	return c
}

func (c *wsClient) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.done:
	}
}

func (c *wsClient) pushError(message string) {
	c.push("error", errorPayload{Message: message})
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (h *WSHandler) serveTeacher(ctx context.Context, client *wsClient) {
	var (
		sessionID   string
		cancelWatch func()
	)
	defer func() {
		if cancelWatch != nil {
			cancelWatch()
		}
	}()

	for {
		var inbound inboundMessage
		if err := client.conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "create":
			var payload createPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				client.pushError("invalid create payload")
				continue
			}
			if sessionID != "" {
				client.pushError("session already created on this connection")
				continue
			}
			session, err := h.registry.CreateSession(ctx, payload.Level)
			if err != nil {
				client.pushError("could not create the session, please try again")
				log.Printf("create session failed: %v", err)
				continue
			}
			sessionID = session.ID

			cancel, err := h.registry.WatchSession(ctx, sessionID, func(s domain.Session) {
				client.push("waitingRoom", waitingRoomPayload{WaitingPlayers: s.WaitingPlayers})
				client.push("rankings", rankingsPayload{Entries: app.Rank(s.Scores)})
			})
			if err != nil {
				log.Printf("watch session failed: %v", err)
			} else {
				cancelWatch = cancel
			}

			client.push("created", sessionPayload{
				SessionID: session.ID,
				Code:      session.Code,
				Level:     session.Level,
				Status:    session.Status,
			})

		case "start":
			if sessionID == "" {
				client.pushError("no session created yet")
				continue
			}
			// Teacher-initiated transitions are retryable; surface failures.
			if err := h.registry.SetStatus(ctx, sessionID, domain.StatusStarted); err != nil {
				client.pushError("could not start the session, please try again")
				log.Printf("start session failed: %v", err)
				continue
			}
			client.push("started", sessionPayload{SessionID: sessionID, Status: domain.StatusStarted})

		case "end":
			if sessionID == "" {
				client.pushError("no session created yet")
				continue
			}
			if err := h.registry.EndSession(ctx, sessionID); err != nil {
				client.pushError("could not end the session, please try again")
				log.Printf("end session failed: %v", err)
				continue
			}
			client.push("ended", sessionPayload{SessionID: sessionID, Status: domain.StatusEnded})

		default:
			client.pushError("unsupported message type")
		}
	}
}

// studentConn tracks per-connection student state. The watch callback and the
// read loop both touch the run, hence the mutex.
type studentConn struct {
	mu        sync.Mutex
	session   domain.Session
	playerID  string
	questions []domain.Question
	run       *app.Run
}

func (h *WSHandler) serveStudent(ctx context.Context, client *wsClient) {
	st := &studentConn{}
	var cancelWatch func()

	defer func() {
		if cancelWatch != nil {
			cancelWatch()
		}
		st.mu.Lock()
		run, sessionID, playerID := st.run, st.session.ID, st.playerID
		st.mu.Unlock()
		if run != nil {
			run.Stop()
		}
		if playerID != "" {
			// Best-effort roster cleanup; teardown does not wait for it.
			_ = h.roster.Leave(sessionID, playerID)
		}
	}()

	for {
		var inbound inboundMessage
		if err := client.conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "join":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				client.pushError("invalid join payload")
				continue
			}
			if st.playerID != "" {
				client.pushError("already joined a session")
				continue
			}

			session, err := h.registry.FindByCode(ctx, payload.Code)
			if err == domain.ErrSessionNotFound {
				client.pushError("no session found for that code")
				continue
			}
			if err != nil {
				client.pushError("could not look up the session, please try again")
				log.Printf("find by code failed: %v", err)
				continue
			}
			if err := app.Joinable(session); err != nil {
				client.pushError("this session has already ended")
				continue
			}

			set, err := h.questions.GetQuestionSet(ctx, session.Level)
			if err != nil {
				client.pushError("questions for this session are unavailable")
				log.Printf("load question set %q failed: %v", session.Level, err)
				continue
			}

			playerID, err := h.roster.JoinAsConnection(ctx, session.ID)
			if err != nil {
				client.pushError("could not join the session, please try again")
				log.Printf("join session failed: %v", err)
				continue
			}

			st.mu.Lock()
			st.session = session
			st.playerID = playerID
			st.questions = set.Questions
			st.mu.Unlock()

			client.push("joined", sessionPayload{
				SessionID: session.ID,
				Code:      session.Code,
				Level:     session.Level,
				Status:    session.Status,
			})

		case "identify":
			var payload identifyPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				client.pushError("invalid identify payload")
				continue
			}
			st.mu.Lock()
			sessionID, playerID := st.session.ID, st.playerID
			st.mu.Unlock()
			if playerID == "" {
				client.pushError("join a session first")
				continue
			}

			// Roster writes are best-effort for students; a failure here only
			// hides the student from the waiting room.
			if err := h.roster.MarkWaiting(ctx, sessionID, payload.StudentID, payload.Name, playerID); err != nil {
				log.Printf("mark waiting failed: %v", err)
			}

			if cancelWatch == nil {
				cancel, err := h.registry.WatchSession(ctx, sessionID, func(s domain.Session) {
					h.onSessionChange(client, st, payload.StudentID, payload.Name, s)
				})
				if err != nil {
					log.Printf("watch session failed: %v", err)
				} else {
					cancelWatch = cancel
				}
			}
			client.push("waiting", waitingRoomPayload{})

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				client.pushError("invalid answer payload")
				continue
			}
			st.mu.Lock()
			run := st.run
			st.mu.Unlock()
			if run == nil {
				client.pushError("quiz has not started")
				continue
			}
			answer := app.Answer{Option: -1, Text: payload.Text}
			if payload.Option != nil {
				answer.Option = *payload.Option
			}
			if err := run.Commit(answer); err != nil {
				client.pushError(err.Error())
			}

		default:
			client.pushError("unsupported message type")
		}
	}
}

// onSessionChange reacts to session document updates: the started transition
// kicks off this student's quiz run, and score changes refresh the rankings
// view once the student has finished.
func (h *WSHandler) onSessionChange(client *wsClient, st *studentConn, studentID, name string, s domain.Session) {
	st.mu.Lock()
	st.session = s

	if s.Status == domain.StatusStarted && st.run == nil {
		st.run = h.newRun(client, st, studentID, name, st.questions)
		run := st.run
		st.mu.Unlock()
		run.Start()
		return
	}

	run := st.run
	st.mu.Unlock()

	if s.Status == domain.StatusEnded {
		client.push("ended", sessionPayload{SessionID: s.ID, Status: s.Status})
		return
	}
	if run != nil {
		if _, finished := run.Result(); finished {
			client.push("rankings", rankingsPayload{Entries: app.Rank(s.Scores)})
		}
	}
}

func (h *WSHandler) newRun(client *wsClient, st *studentConn, studentID, name string, questions []domain.Question) *app.Run {
	return app.NewRun(studentID, name, questions, app.RunConfig{
		QuestionDuration: h.questionDuration,
		RevealDelay:      h.revealDelay,
		OnQuestion: func(index int, q domain.Question) {
			client.push("question", questionPayload{
				Index:    index,
				Total:    len(questions),
				ID:       q.ID,
				Question: q.Question,
				Options:  q.Options,
				Type:     q.Type,
				Seconds:  int(h.questionDuration.Seconds()),
			})
		},
		OnReveal: func(index int, correct bool, answer string) {
			client.push("reveal", revealPayload{Index: index, Correct: correct, Answer: answer})
		},
		OnFinished: func(result domain.QuizResult) {
			// The local result is final for the student even if the shared
			// score write fails: fire-and-log, not fire-and-block.
			client.push("finished", result)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
				defer cancel()
				st.mu.Lock()
				sessionID := st.session.ID
				st.mu.Unlock()
				if err := h.aggregator.Submit(ctx, sessionID, result); err != nil {
					log.Printf("submit quiz result failed: %v", err)
				}
			}()
		},
	})
}
