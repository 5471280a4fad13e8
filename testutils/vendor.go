package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// FakeVendor тестовый сервер поставщика трекинга с маршрутами по пути запроса
type FakeVendor struct {
	Server *httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
	auth   []string
}

// NewFakeVendor запускает сервер, который закрывается в конце теста
func NewFakeVendor(t *testing.T) *FakeVendor {
	t.Helper()

	fv := &FakeVendor{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]int),
	}
	fv.Server = httptest.NewServer(http.HandlerFunc(fv.serve))
	t.Cleanup(fv.Server.Close)
	return fv
}

func (fv *FakeVendor) serve(w http.ResponseWriter, r *http.Request) {
	fv.mu.Lock()
	fv.hits[r.URL.Path]++
	fv.auth = append(fv.auth, r.Header.Get("Authorization"))
	handler, ok := fv.routes[r.URL.Path]
	fv.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

// URL базовый адрес сервера
func (fv *FakeVendor) URL() string {
	return fv.Server.URL
}

// Handle регистрирует обработчик пути
func (fv *FakeVendor) Handle(path string, handler http.HandlerFunc) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	fv.routes[path] = handler
}

// HandleJSON отвечает на путь фиксированным JSON
func (fv *FakeVendor) HandleJSON(path string, status int, body interface{}) {
	fv.Handle(path, JSONHandler(status, body))
}

// Hits количество запросов к пути
func (fv *FakeVendor) Hits(path string) int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return fv.hits[path]
}

// TotalHits количество всех запросов
func (fv *FakeVendor) TotalHits() int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	total := 0
	for _, n := range fv.hits {
		total += n
	}
	return total
}

// AuthHeaders значения заголовка Authorization всех запросов
func (fv *FakeVendor) AuthHeaders() []string {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return append([]string(nil), fv.auth...)
}

// JSONHandler отвечает статусом и JSON-телом
func JSONHandler(status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// RawHandler отвечает статусом и телом как есть
func RawHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

// HangingHandler не отвечает, пока клиент не отменит запрос
func HangingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}
}
