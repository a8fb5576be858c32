package cache

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Handler serves a LocalStore over HTTP so several runner hosts can share one
// compiler cache. The wire protocol mirrors the store contract: probing a key
// chain is a query, snapshots move as raw tarballs.
//
//	GET /v1/cache?keys=a,b,c      -> {"key": "..."} or 404
//	GET /v1/cache/blob?keys=a,b,c -> tarball, X-Cache-Key header
//	PUT /v1/cache/blob/:key       -> store uploaded tarball
//	GET /v1/caches                -> index of entries
type Handler struct {
	store  *LocalStore
	secret []byte
	router *httprouter.Router
}

// NewHandler creates the cache server handler. An empty secret disables
// authentication, for use behind a trusted interface only.
func NewHandler(store *LocalStore, secret string) *Handler {
	h := &Handler{
		store:  store,
		secret: []byte(secret),
	}

	router := httprouter.New()
	router.GET("/v1/cache", h.auth(h.find))
	router.GET("/v1/cache/blob", h.auth(h.download))
	router.PUT("/v1/cache/blob/:key", h.auth(h.upload))
	router.GET("/v1/caches", h.auth(h.index))
	h.router = router

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) auth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		if len(h.secret) > 0 {
			tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			_, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return h.secret, nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
		}
		next(w, r, params)
	}
}

func probeKeys(r *http.Request) []string {
	keys := make([]string, 0)
	for _, key := range strings.Split(r.URL.Query().Get("keys"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	hit, err := h.store.Exists(probeKeys(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if hit == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"key": hit})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	hit, blob, err := h.store.OpenArchive(probeKeys(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if blob == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("X-Cache-Key", hit)
	if _, err := io.Copy(w, blob); err != nil {
		log.Debugf("cache download aborted: %v", err)
	}
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	key := params.ByName("key")
	if err := h.store.SaveArchive(key, r.Body); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := h.store.list()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("unable to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// NewToken signs a bearer token for the cache server with the shared secret
func NewToken(secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "pytorch-legacy",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	return token.SignedString([]byte(secret))
}

// Serve listens on addr and serves the store until the listener fails
func Serve(addr string, store *LocalStore, secret string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", addr)
	}
	log.Infof("cache server listening on %s", listener.Addr())
	return http.Serve(listener, NewHandler(store, secret))
}
