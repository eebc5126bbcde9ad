package httpserver

import (
	"encoding/json"
	"net/http"
)

type successResponse struct {
	IsSuccessful bool `json:"isSuccessful"`
}

type itemResponse struct {
	IsSuccessful bool `json:"isSuccessful"`
	Item         any  `json:"item"`
}

type itemsResponse struct {
	IsSuccessful bool `json:"isSuccessful"`
	Items        any  `json:"items"`
}

type errorResponse struct {
	IsSuccessful bool   `json:"isSuccessful"`
	Message      string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successResponse{IsSuccessful: true})
}

func writeItem(w http.ResponseWriter, status int, item any) {
	writeJSON(w, status, itemResponse{IsSuccessful: true, Item: item})
}

func writeItems(w http.ResponseWriter, items any) {
	writeJSON(w, http.StatusOK, itemsResponse{IsSuccessful: true, Items: items})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
