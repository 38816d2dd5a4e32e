package websocket

import (
	"log"
	"net/http"
	"time"

	"portfolio-sync/internal/domain"
	"portfolio-sync/internal/usecase"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients connect from arbitrary origins
	},
}

// Handler streams the synchronized state to connected clients. The UI renders
// from this shared state only, never from direct storage reads.
type Handler struct {
	store  domain.RecordStore
	poller *usecase.OrdersPoller
}

func NewHandler(store domain.RecordStore, poller *usecase.OrdersPoller) *Handler {
	return &Handler{
		store:  store,
		poller: poller,
	}
}

type statePayload struct {
	Balances []domain.Record               `json:"balances"`
	Orders   map[string][]domain.OpenOrder `json:"orders"`
	Results  []domain.OrderFetchResult     `json:"results"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	log.Println("ws: client connected")

	// Send current state immediately, then on a fixed cadence.
	if err := conn.WriteJSON(h.snapshot()); err != nil {
		log.Println("ws: write error:", err)
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(h.snapshot()); err != nil {
			log.Println("ws: write error:", err)
			return
		}
	}
}

func (h *Handler) snapshot() statePayload {
	return statePayload{
		Balances: h.store.FindAll(domain.CollectionBalanceSnapshots),
		Orders:   usecase.PartitionOrders(h.poller.Latest()),
		Results:  h.poller.LastResults(),
	}
}
