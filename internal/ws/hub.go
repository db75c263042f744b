package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"telemed/internal/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub хранит живые подключения, сгруппированные по ID пользователя.
type Hub struct {
	// Для каждого пользователя храним множество подключений (несколько вкладок).
	clients map[uint]map[*Client]bool
	// Канал для регистрации нового клиента.
	register chan *Client
	// Канал для удаления клиента.
	unregister chan *Client
	// Канал для доставки сообщений конкретному пользователю.
	deliver chan delivery
	// Mutex для защиты карты клиентов.
	mu sync.RWMutex
}

type delivery struct {
	UserID  uint
	Message []byte
}

// WSMessage — формат исходящего сообщения по WebSocket.
type WSMessage struct {
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Создаем глобальный экземпляр хаба.
var HubInstance = NewHub()

// Dispatcher — диспетчер очередей, задаётся из main при старте.
var Dispatcher *dispatch.Dispatcher

// NewHub создает новый Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery),
	}
}

// Run запускает цикл обработки каналов хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
		case msg := <-h.deliver:
			h.mu.RLock()
			if clients, ok := h.clients[msg.UserID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify сериализует намерение диспетчера и отправляет его адресату.
// Доставка идёт уже после фиксации мутации: отвалившийся получатель
// не может затормозить очередь.
func (h *Hub) Notify(n dispatch.Notification) {
	payload, err := json.Marshal(WSMessage{EventType: n.EventType, Data: n.Data})
	if err != nil {
		log.Println("Ошибка сериализации WS сообщения:", err)
		return
	}
	h.deliver <- delivery{UserID: n.UserID, Message: payload}
}

// NotifyAll доставляет пачку намерений по порядку.
func (h *Hub) NotifyAll(notifs []dispatch.Notification) {
	for _, n := range notifs {
		h.Notify(n)
	}
}

// NotifyError отправляет пользователю событие error с текстом.
func (h *Hub) NotifyError(userID uint, message string) {
	h.Notify(dispatch.Notification{
		UserID:    userID,
		EventType: dispatch.EventError,
		Data:      map[string]interface{}{"message": message},
	})
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	UserID   uint
	IsDoctor bool
}

// readPump читает события клиента и прогоняет их через диспетчер.
// Разрыв соединения превращается в синтетическое событие выхода из очереди
// (пациент) или ухода в offline (врач) — тем же путём, что и обычные события.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
		if c.IsDoctor {
			Dispatcher.DisconnectDoctor(c.UserID)
		} else {
			c.Hub.NotifyAll(Dispatcher.DisconnectPatient(c.UserID))
		}
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}
		handleClientEvent(c, message)
	}
}

// writePump отправляет сообщения клиенту из канала Send.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Канал закрыт.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// Отправка ping-сообщения для поддержания соединения.
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Настраиваем апгрейдер для WebSocket с разрешением всех источников.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConsultWebSocketHandler обновляет соединение до WebSocket и регистрирует
// клиента в Hub. Идентификация берётся из контекста после auth-middleware.
// URL-пример: /api/ws
func ConsultWebSocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		http.Error(c.Writer, "Ошибка обновления до WebSocket", http.StatusInternalServerError)
		return
	}
	client := &Client{
		Hub:      HubInstance,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   c.GetUint("userID"),
		IsDoctor: c.GetBool("isDoctor"),
	}
	HubInstance.register <- client

	// Запускаем горутины для отправки и приема сообщений
	go client.writePump()
	client.readPump()
}
