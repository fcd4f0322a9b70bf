package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "stockbill_session", time.Hour, false), mr
}

func TestSessionFlashSurvivesRedirect(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodPost, "/items/new", nil))
	require.NoError(t, err)
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Item added"})
	sess.SetDataset("Stationery")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.True(t, mr.Exists("stockbill:session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "Stationery", loaded.Dataset())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	require.Equal(t, "Item added", flash.Message)
	require.Nil(t, loaded.PopFlash())
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), loaded))

	again, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Nil(t, again.PopFlash())
}

func TestSessionUnknownCookieStartsFresh(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "forged"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, "forged", sess.ID)
	require.Empty(t, sess.Dataset())
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	require.True(t, mr.Exists("stockbill:session:"+sess.ID))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.False(t, mr.Exists("stockbill:session:"+sess.ID))
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	sess := newSession("session-a")

	token, err := m.EnsureToken(sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(sess, token))
	require.ErrorIs(t, m.VerifyToken(sess, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(sess, token+"x"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, m.VerifyToken(newSession("session-b"), token), ErrCSRFTokenMissing)

	// a token copied into another session does not verify there
	other := newSession("session-b")
	other.Set(CSRFSessionKey, token)
	require.ErrorIs(t, m.VerifyToken(other, token), ErrCSRFTokenMismatch)
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasPrev())
	require.True(t, p.HasNext())
	require.Equal(t, 11, p.First())
	require.Equal(t, 20, p.Last())

	last := NewPagination(3, 10, 25)
	require.False(t, last.HasNext())
	require.Equal(t, 25, last.Last())

	empty := NewPagination(1, 10, 0)
	require.Zero(t, empty.First())
	require.False(t, empty.HasNext())
}
