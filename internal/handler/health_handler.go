package handler

import (
	"net/http"

	"notes-backend/pkg/response"
)

func Root(w http.ResponseWriter, r *http.Request) {
	response.Message(w, "Healthy")
}

func Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "notes-backend",
	})
}
