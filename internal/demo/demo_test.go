package demo

import (
	"bytes"
	"context"
	"image/color"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apiclient"
	"rollcall/internal/apperr"
	"rollcall/internal/capture"
	"rollcall/internal/clock"
	"rollcall/internal/fakeserver"
	"rollcall/internal/model"
)

func png(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(120, 90, c), imaging.PNG))
	return buf.Bytes()
}

type demoEnv struct {
	svc   *fakeserver.FaceService
	clock *clock.Fake
	dev   *capture.FrameDevice
	ctrl  *Controller
}

func newDemoEnv(t *testing.T) *demoEnv {
	t.Helper()
	svc := fakeserver.NewFaceService()
	hs := httptest.NewServer(svc.Handler())
	t.Cleanup(hs.Close)
	clk := clock.NewFake(time.Now())
	dev := capture.NewFrameDevice()
	ctrl := New(apiclient.NewFaceAPI(hs.URL, 2*time.Second, nil), dev, Options{Clock: clk})
	t.Cleanup(ctrl.Close)
	return &demoEnv{svc: svc, clock: clk, dev: dev, ctrl: ctrl}
}

func TestStatsPolledEveryTenSeconds(t *testing.T) {
	e := newDemoEnv(t)
	e.ctrl.Start(context.Background())

	require.Eventually(t, func() bool { return e.ctrl.State().Stats != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, e.ctrl.State().Stats.RegisteredFaces)

	e.clock.Advance(9 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, e.svc.Calls("/"))

	e.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.svc.Calls("/") == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestRegisterThenRecognize(t *testing.T) {
	e := newDemoEnv(t)
	ctx := context.Background()
	e.ctrl.Start(ctx)
	face := png(t, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	e.dev.Push(face)

	msg, err := e.ctrl.Register(ctx, "  Zeynep  ")
	require.NoError(t, err)
	assert.Equal(t, "Zeynep basariyla kaydedildi", msg)
	require.Eventually(t, func() bool {
		s := e.ctrl.State()
		return s.Stats != nil && s.Stats.UniquePeople == 1
	}, 2*time.Second, 5*time.Millisecond)

	e.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, "idle", e.ctrl.State().Phase)

	// the same frame normalizes to the same JPEG bytes
	e.dev.Push(face)
	rec, err := e.ctrl.Recognize(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Recognized)
	assert.Equal(t, "Zeynep", rec.Name)
	assert.Equal(t, "succeeded", e.ctrl.State().Phase)

	e.ctrl.Cancel()
	e.dev.Push(png(t, color.NRGBA{R: 250, G: 0, B: 0, A: 255}))
	rec, err = e.ctrl.Recognize(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Recognized)
	assert.Equal(t, "Yuz taninamadi", e.ctrl.State().Status)

	people, err := e.ctrl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PersonSamples{{Name: "Zeynep", SampleCount: 1}}, people)

	_, err = e.ctrl.Delete(ctx, "Zeynep")
	require.NoError(t, err)
	_, err = e.ctrl.Delete(ctx, "Zeynep")
	assert.True(t, apperr.IsRejected(err))
}

func TestRegisterRequiresName(t *testing.T) {
	e := newDemoEnv(t)
	_, err := e.ctrl.Register(context.Background(), "   ")
	assert.True(t, apperr.IsPrecondition(err))
	assert.Equal(t, 0, e.svc.Calls("/register"))
}

func TestRecognizeWithEmptyGallery(t *testing.T) {
	e := newDemoEnv(t)
	e.dev.Push(png(t, color.NRGBA{A: 255}))

	_, err := e.ctrl.Recognize(context.Background())
	assert.True(t, apperr.IsRejected(err))
	s := e.ctrl.State()
	assert.Equal(t, "failed", s.Phase)
	assert.Equal(t, "Kayitli yuz yok. Once yuz kaydi yapin.", s.Status)
	assert.False(t, s.Busy)
}

func TestNameThatLooksLikeACommandIsEnrolled(t *testing.T) {
	e := newDemoEnv(t)
	ctx := context.Background()
	e.dev.Push(png(t, color.NRGBA{R: 40, G: 40, B: 200, A: 255}))

	msg, err := e.ctrl.Register(ctx, "recognize")
	require.NoError(t, err)
	assert.Equal(t, "recognize basariyla kaydedildi", msg)
	assert.Equal(t, 1, e.svc.Calls("/register"))
	assert.Zero(t, e.svc.Calls("/recognize"))

	people, err := e.ctrl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.PersonSamples{{Name: "recognize", SampleCount: 1}}, people)
}
