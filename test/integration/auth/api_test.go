// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/auth/postgres"
	"github.com/phobos/authd/internal/httpapi"
)

const prefix = "/auth/api/0.1"

func digest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

type session struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
}

func (s session) headers() map[string]string {
	return map[string]string{"localId": s.LocalID, "idToken": s.IDToken}
}

type api struct {
	handler http.Handler
	svc     *auth.Service
}

func newAPI() *api {
	svc, err := auth.NewService(postgres.NewUserRepository(env.pool), auth.NewHMACHasher())
	Expect(err).NotTo(HaveOccurred())
	r, err := httpapi.NewRouter(svc, httpapi.RouterOptions{Prefix: prefix})
	Expect(err).NotTo(HaveOccurred())
	return &api{handler: r, svc: svc}
}

func (a *api) do(method, path string, body any, headers map[string]string) (int, map[string]any) {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
	}
	req := httptest.NewRequest(method, prefix+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	var out map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed(), w.Body.String())
	return w.Code, out
}

func (a *api) register(name, email, password string) {
	code, body := a.do(http.MethodPost, "/user", map[string]string{
		"displayName": name, "email": email, "password": digest(password),
	}, nil)
	Expect(code).To(Equal(http.StatusCreated), "%v", body)
}

func (a *api) login(email, password string) session {
	code, body := a.do(http.MethodPost, "/user/login", map[string]string{
		"email": email, "password": digest(password),
	}, nil)
	Expect(code).To(Equal(http.StatusOK), "%v", body)
	user := body["user"].(map[string]any)
	return session{LocalID: user["localId"].(string), IDToken: user["idToken"].(string)}
}

var _ = Describe("User API", func() {
	var a *api

	BeforeEach(func() {
		truncateUsers()
		a = newAPI()
	})

	It("runs the full account lifecycle", func() {
		a.register("Ada", "ada@example.com", "pw1")

		code, body := a.do(http.MethodPost, "/user", map[string]string{
			"displayName": "Imposter", "email": "ADA@example.com", "password": digest("x"),
		}, nil)
		Expect(code).To(Equal(http.StatusBadRequest))
		Expect(body["msg"]).To(Equal("Duplicate entry"))

		s := a.login("ada@example.com", "pw1")
		Expect(s.IDToken).To(HaveLen(256))

		code, body = a.do(http.MethodGet, "/user", nil, s.headers())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["user"]).To(HaveKeyWithValue("displayName", "Ada"))

		code, _ = a.do(http.MethodPatch, "/user/displayname", map[string]string{"displayName": "Countess"}, s.headers())
		Expect(code).To(Equal(http.StatusOK))
		code, _ = a.do(http.MethodPatch, "/user/email", map[string]string{"email": "countess@example.com"}, s.headers())
		Expect(code).To(Equal(http.StatusOK))
		code, _ = a.do(http.MethodPatch, "/user/password", map[string]string{"password": digest("pw2")}, s.headers())
		Expect(code).To(Equal(http.StatusOK))

		code, _ = a.do(http.MethodPost, "/user/login", map[string]string{
			"email": "countess@example.com", "password": digest("pw1"),
		}, nil)
		Expect(code).To(Equal(http.StatusUnauthorized))

		s = a.login("countess@example.com", "pw2")

		code, body = a.do(http.MethodPost, "/user/logout", nil, s.headers())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["data"]).To(HaveKeyWithValue("modifiedCount", BeNumerically("==", 1)))

		code, _ = a.do(http.MethodGet, "/user", nil, s.headers())
		Expect(code).To(Equal(http.StatusUnauthorized))
	})

	It("distinguishes unknown email from a wrong password by status only", func() {
		a.register("Ada", "ada@example.com", "pw1")

		unknownCode, unknown := a.do(http.MethodPost, "/user/login", map[string]string{
			"email": "nobody@example.com", "password": digest("pw1"),
		}, nil)
		wrongCode, wrong := a.do(http.MethodPost, "/user/login", map[string]string{
			"email": "ada@example.com", "password": digest("nope"),
		}, nil)

		Expect(unknownCode).To(Equal(http.StatusNotFound))
		Expect(wrongCode).To(Equal(http.StatusUnauthorized))
		Expect(unknown["msg"]).To(Equal(wrong["msg"]))
	})

	It("rejects an email change to an address already in use", func() {
		a.register("Ada", "ada@example.com", "pw1")
		a.register("Grace", "grace@example.com", "pw2")
		s := a.login("ada@example.com", "pw1")

		code, body := a.do(http.MethodPatch, "/user/email", map[string]string{"email": "Grace@Example.com"}, s.headers())
		Expect(code).To(Equal(http.StatusBadRequest))
		Expect(body["msg"]).To(Equal("Duplicate entry"))
	})

	It("keeps exactly one valid token under concurrent logins", func() {
		a.register("Ada", "ada@example.com", "pw1")

		const n = 8
		sessions := make([]session, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				sessions[i] = a.login("ada@example.com", "pw1")
			}(i)
		}
		wg.Wait()

		valid := 0
		for _, s := range sessions {
			code, _ := a.do(http.MethodGet, "/user", nil, s.headers())
			if code == http.StatusOK {
				valid++
			}
		}
		Expect(valid).To(Equal(1))
	})

	It("locks out a disabled account until it is re-enabled", func() {
		a.register("Ada", "ada@example.com", "pw1")
		s := a.login("ada@example.com", "pw1")

		Expect(a.svc.SetActive(env.ctx, "ADA@example.com", false)).To(Succeed())

		code, _ := a.do(http.MethodGet, "/user", nil, s.headers())
		Expect(code).To(Equal(http.StatusUnauthorized))
		code, body := a.do(http.MethodPost, "/user/login", map[string]string{
			"email": "ada@example.com", "password": digest("pw1"),
		}, nil)
		Expect(code).To(Equal(http.StatusForbidden))
		Expect(body["msg"]).To(Equal("Account disabled, contact your administrator"))

		Expect(a.svc.SetActive(env.ctx, "ada@example.com", true)).To(Succeed())
		a.login("ada@example.com", "pw1")
	})

	It("stores only a hash of the session token", func() {
		a.register("Ada", "ada@example.com", "pw1")
		s := a.login("ada@example.com", "pw1")

		var stored string
		err := env.pool.QueryRow(env.ctx,
			"SELECT session_token_hash FROM users WHERE id = $1", s.LocalID,
		).Scan(&stored)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).NotTo(BeEmpty())
		Expect(strings.Contains(stored, s.IDToken)).To(BeFalse())
		Expect(stored).To(Equal(auth.HashSessionToken(s.IDToken)))
	})
})
