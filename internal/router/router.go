package router

import (
	"net/http"

	"repairmarket/internal/auth"
	"repairmarket/internal/controller"
)

func NewRouter(c *controller.Controller, jwtSecret string, limiter *Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/requests/new", c.NewRequest)
	mux.HandleFunc("GET /api/requests", c.GetRequests)
	mux.HandleFunc("GET /api/requests/{requestId}", c.GetRequest)
	mux.HandleFunc("PATCH /api/requests/{requestId}", c.EditRequest)
	mux.HandleFunc("DELETE /api/requests/{requestId}", c.DeleteRequest)
	mux.HandleFunc("PUT /api/requests/{requestId}/complete", c.CompleteRequest)
	mux.HandleFunc("POST /api/bids/new", limiter.Wrap(c.NewBid))
	mux.HandleFunc("GET /api/bids/my", c.MyBids)
	mux.HandleFunc("GET /api/bids/{requestId}/list", c.RequestBids)
	mux.HandleFunc("PUT /api/bids/{bidId}/accept", c.AcceptBid)
	mux.HandleFunc("PUT /api/bids/{bidId}/reject", c.RejectBid)
	mux.HandleFunc("PUT /api/bids/{bidId}/withdraw", c.WithdrawBid)
	mux.HandleFunc("GET /api/notifications", c.GetNotifications)
	mux.HandleFunc("PUT /api/notifications/{notificationId}/read", c.ReadNotification)
	mux.HandleFunc("PUT /api/technicians/{userId}/approve", c.ApproveTechnician)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("page not found"))
	})

	authed := auth.Middleware(jwtSecret, mux)

	top := http.NewServeMux()
	top.HandleFunc("GET /api/ping", c.Ping)
	top.Handle("/", authed)

	cors := http.NewServeMux()
	cors.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Accept", "*/*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
		} else {
			top.ServeHTTP(w, r)
		}
	})

	return cors
}
