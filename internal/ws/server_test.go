package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/auth"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/config"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/policy"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/room"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/store"
)

type testEnv struct {
	server   *httptest.Server
	resolver *auth.Resolver
}

// newTestEnv starts a live server over an in-memory store with diagram "7"
// owned by u1 and shared with u2.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CreateDiagram(ctx, "7", "u1", nil); err != nil {
		t.Fatalf("CreateDiagram failed: %v", err)
	}
	if err := db.AddCollaborator(ctx, "7", "u2"); err != nil {
		t.Fatalf("AddCollaborator failed: %v", err)
	}

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		PingInterval:   10 * time.Second,
		WriteTimeout:   2 * time.Second,
		ReadTimeout:    10 * time.Second,
		MaxMessageSize: 65536,
	}
	resolver := auth.NewResolver(cfg.JWTSecret)
	registry := room.NewRegistry(db, policy.NewAuthorizer(db, engine))
	wsServer := NewServer(cfg, registry, resolver)

	e := echo.New()
	e.GET("/ws/diagrama/:diagrama_id", wsServer.HandleWebSocket)
	e.GET("/ws/diagrama/:diagrama_id/", wsServer.HandleWebSocket)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, resolver: resolver}
}

// dial connects to a diagram room, asserting the greeting. An empty userID
// dials anonymously.
func (env *testEnv) dial(t *testing.T, diagramID, userID, name string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/diagrama/" + diagramID + "/"
	header := http.Header{}
	if userID != "" {
		token, err := env.resolver.IssueToken(domain.Identity{UserID: userID, Name: name}, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	greeting := readMessage(t, conn)
	if greeting["tipo"] != "conexion_establecida" {
		t.Fatalf("expected conexion_establecida greeting, got %v", greeting)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid server message %q: %v", data, err)
	}
	return msg
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "7", "u1", "Ana")

	sendJSON(t, conn, map[string]interface{}{"tipo": "ping"})

	msg := readMessage(t, conn)
	if msg["tipo"] != "pong" {
		t.Fatalf("expected pong, got %v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg["timestamp"].(string)); err != nil {
		t.Fatalf("pong timestamp is not RFC3339: %v", msg)
	}
}

func TestInvalidJSONKeepsConnectionOpen(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "7", "u1", "Ana")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["tipo"] != "error" || msg["mensaje"] != "Formato JSON inválido" {
		t.Fatalf("expected invalid JSON error, got %v", msg)
	}

	// The connection must survive the error.
	sendJSON(t, conn, map[string]interface{}{"tipo": "ping"})
	if msg := readMessage(t, conn); msg["tipo"] != "pong" {
		t.Fatalf("expected pong after error, got %v", msg)
	}
}

func TestUnknownTypeAnswersWithError(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "7", "u1", "Ana")

	sendJSON(t, conn, map[string]interface{}{"tipo": "bailar"})

	msg := readMessage(t, conn)
	if msg["tipo"] != "error" {
		t.Fatalf("expected error, got %v", msg)
	}
	if !strings.Contains(msg["mensaje"].(string), "bailar") {
		t.Fatalf("error must name the unknown type: %v", msg)
	}
}

func TestChangeConfirmedAndBroadcast(t *testing.T) {
	env := newTestEnv(t)
	author := env.dial(t, "7", "u1", "Ana")
	observer := env.dial(t, "7", "u2", "Bruno")

	sendJSON(t, author, map[string]interface{}{
		"tipo": "cambio_diagrama",
		"cambio": map[string]interface{}{
			"tipo":  "crear_nodo",
			"datos": map[string]interface{}{"id": "n1", "nombre": "Cliente"},
		},
	})

	confirmed := readMessage(t, author)
	if confirmed["tipo"] != "cambio_confirmado" {
		t.Fatalf("expected cambio_confirmado, got %v", confirmed)
	}
	if confirmed["cambio_id"] == "" {
		t.Fatalf("confirmation must carry a change id: %v", confirmed)
	}

	received := readMessage(t, observer)
	if received["tipo"] != "cambio_recibido" {
		t.Fatalf("expected cambio_recibido, got %v", received)
	}
	if received["usuario_id"] != "u1" || received["usuario_nombre"] != "Ana" {
		t.Fatalf("broadcast must name the author: %v", received)
	}
	datos := received["cambio"].(map[string]interface{})["datos"].(map[string]interface{})
	if datos["id"] != "n1" {
		t.Fatalf("broadcast carries wrong data: %v", received)
	}
}

func TestAnonymousChangeRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "7", "", "")

	sendJSON(t, conn, map[string]interface{}{
		"tipo": "cambio_diagrama",
		"cambio": map[string]interface{}{
			"tipo":  "crear_nodo",
			"datos": map[string]interface{}{"id": "n1"},
		},
	})

	msg := readMessage(t, conn)
	if msg["tipo"] != "error" || msg["mensaje"] != "No autorizado para editar este diagrama" {
		t.Fatalf("expected unauthorized error, got %v", msg)
	}

	// Read-only operations keep working.
	sendJSON(t, conn, map[string]interface{}{"tipo": "sincronizar_estado"})
	if msg := readMessage(t, conn); msg["tipo"] != "estado_sincronizado" {
		t.Fatalf("expected estado_sincronizado, got %v", msg)
	}
}

func TestInvalidChangePayloadRejected(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "7", "u1", "Ana")

	sendJSON(t, conn, map[string]interface{}{
		"tipo":   "cambio_diagrama",
		"cambio": map[string]interface{}{"tipo": "crear_nodo"},
	})

	msg := readMessage(t, conn)
	if msg["tipo"] != "error" || msg["mensaje"] != "Estructura de cambio inválida" {
		t.Fatalf("expected invalid change error, got %v", msg)
	}
}

func TestSyncStateReturnsStructureAndPresence(t *testing.T) {
	env := newTestEnv(t)
	author := env.dial(t, "7", "u1", "Ana")
	observer := env.dial(t, "7", "u2", "Bruno")

	sendJSON(t, author, map[string]interface{}{
		"tipo": "cambio_diagrama",
		"cambio": map[string]interface{}{
			"tipo":  "crear_nodo",
			"datos": map[string]interface{}{"id": "n1"},
		},
	})
	if msg := readMessage(t, author); msg["tipo"] != "cambio_confirmado" {
		t.Fatalf("expected cambio_confirmado, got %v", msg)
	}
	if msg := readMessage(t, observer); msg["tipo"] != "cambio_recibido" {
		t.Fatalf("expected cambio_recibido, got %v", msg)
	}

	sendJSON(t, observer, map[string]interface{}{"tipo": "sincronizar_estado"})
	msg := readMessage(t, observer)
	if msg["tipo"] != "estado_sincronizado" {
		t.Fatalf("expected estado_sincronizado, got %v", msg)
	}
	nodes := msg["estructura"].(map[string]interface{})["nodos"].([]interface{})
	if len(nodes) != 1 {
		t.Fatalf("expected the applied node, got %v", nodes)
	}
	users := msg["usuarios_conectados"].([]interface{})
	if len(users) != 2 {
		t.Fatalf("expected 2 connected users, got %v", users)
	}
}

func TestEditingSignalRelayedToOthers(t *testing.T) {
	env := newTestEnv(t)
	editor := env.dial(t, "7", "u1", "Ana")
	observer := env.dial(t, "7", "u2", "Bruno")

	sendJSON(t, editor, map[string]interface{}{
		"tipo":        "usuario_editando",
		"elemento_id": "n1",
		"editando":    true,
	})

	msg := readMessage(t, observer)
	if msg["tipo"] != "usuario_editando" {
		t.Fatalf("expected usuario_editando, got %v", msg)
	}
	if msg["elemento_id"] != "n1" || msg["editando"] != true || msg["usuario_id"] != "u1" {
		t.Fatalf("unexpected editing event: %v", msg)
	}
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	env := newTestEnv(t)
	staying := env.dial(t, "7", "u1", "Ana")
	leaving := env.dial(t, "7", "u2", "Bruno")

	leaving.Close()

	msg := readMessage(t, staying)
	if msg["tipo"] != "usuario_desconectado" {
		t.Fatalf("expected usuario_desconectado, got %v", msg)
	}
	if msg["usuario_id"] != "u2" {
		t.Fatalf("disconnect names the wrong user: %v", msg)
	}
}
