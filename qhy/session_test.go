package qhy_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/qhylab/qhy"
)

func TestOpenNoDevice(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Cameras = 0
	_, err := qhy.Open(sim, 0)
	if !errors.Is(err, qhy.ErrNoDevice) {
		t.Errorf("expected NoDevice got %v", err)
	}
	if sim.Loaded() {
		t.Errorf("expected the SDK to be released after a failed open")
	}
}

func TestOpenEmptyIdentity(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Codes["GetQHYCCDId"] = -1
	_, err := qhy.Open(sim, 0)
	if !errors.Is(err, qhy.ErrNoDevice) {
		t.Errorf("expected NoDevice got %v", err)
	}
}

func TestOpenFailed(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Codes["OpenQHYCCD"] = -14
	_, err := qhy.Open(sim, 0)
	if !errors.Is(err, qhy.ErrOpenFailed) {
		t.Errorf("expected OpenFailed got %v", err)
	}
	if n := sim.CallCount("CloseQHYCCD"); n != 0 {
		t.Errorf("expected no close without a handle, got %d", n)
	}
	if sim.Loaded() {
		t.Errorf("expected the SDK to be released after a failed open")
	}
}

func TestOpenInitFailureClosesHandle(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Codes["InitQHYCCD"] = -10
	_, err := qhy.Open(sim, 0)
	if !qhy.IsKind(err, qhy.KindInitCamera) {
		t.Errorf("expected InitCamera got %v", err)
	}
	if n := sim.CallCount("CloseQHYCCD"); n != 1 {
		t.Errorf("expected the handle to be closed once, got %d", n)
	}
	if sim.Loaded() {
		t.Errorf("expected the SDK to be released after a failed open")
	}
}

func TestOpenBadChip(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Chip.MaxX = 0
	if _, err := qhy.Open(sim, 0); err == nil {
		t.Errorf("expected a chip with a zero field to be rejected")
	}
}

func TestOpenStreamMode(t *testing.T) {
	sim := qhy.NewSimulator()
	cam, err := qhy.Open(sim, 0, qhy.WithStreamMode("live"))
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	if sim.StreamMode() != 1 {
		t.Errorf("expected stream mode 1 at the device got %d", sim.StreamMode())
	}
	if s, _ := cam.Params().ReadEnum(qhy.ParamStreamMode); s != "live" {
		t.Errorf("expected live got %s", s)
	}

	_, err = qhy.Open(qhy.NewSimulator(), 0, qhy.WithStreamMode("video"))
	if !errors.Is(err, qhy.ErrUnknownVariant) {
		t.Errorf("expected UnknownVariant for a bad stream mode got %v", err)
	}
}

func TestOpenState(t *testing.T) {
	cam, _ := openSmall(t)
	defer cam.Close()
	if cam.State() != qhy.StateIdle {
		t.Errorf("expected Idle got %s", cam.State())
	}
	if cam.Identity() == "" {
		t.Errorf("expected an identity")
	}
	if diff := cmp.Diff(smallChip, cam.Chip()); diff != "" {
		t.Errorf("chip differs (-want +got):\n%s", diff)
	}
}

func TestTransitionsObserved(t *testing.T) {
	var seen []string
	obs := func(tr qhy.Transition) {
		seen = append(seen, fmt.Sprintf("%s->%s", tr.From, tr.To))
	}
	cam, _ := openSmall(t, qhy.WithObserver(obs))
	if _, err := cam.Capture(bg()); err != nil {
		t.Fatal(err)
	}
	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"Uninitialized->Idle",
		"Idle->Exposing",
		"Exposing->FrameReady",
		"FrameReady->Idle",
		"Idle->Closed",
	}
	if diff := cmp.Diff(expected, seen); diff != "" {
		t.Errorf("transitions differ (-want +got):\n%s", diff)
	}
}

func TestCancelNoOpWhenIdle(t *testing.T) {
	cam, sim := openSmall(t)
	defer cam.Close()
	if err := cam.Cancel(); err != nil {
		t.Errorf("expected cancel from Idle to be a no-op, got %v", err)
	}
	if cam.State() != qhy.StateIdle {
		t.Errorf("expected Idle got %s", cam.State())
	}
	if n := sim.CallCount("CancelQHYCCDExposingAndReadout"); n != 0 {
		t.Errorf("expected no SDK cancel from Idle, got %d", n)
	}
}

func TestStartExposureTwice(t *testing.T) {
	cam, _ := openSmall(t)
	if err := cam.StartExposure(); err != nil {
		t.Fatal(err)
	}
	err := cam.StartExposure()
	if !errors.Is(err, qhy.ErrAlreadyExposing) {
		t.Errorf("expected AlreadyExposing got %v", err)
	}
	if err := cam.Close(); !errors.Is(err, qhy.ErrInvalidState) {
		t.Errorf("expected close while exposing to be InvalidState, got %v", err)
	}
	if err := cam.Cancel(); err != nil {
		t.Fatal(err)
	}
	if cam.State() != qhy.StateIdle {
		t.Errorf("expected Idle after cancel got %s", cam.State())
	}
	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteWhileExposing(t *testing.T) {
	cam, sim := openSmall(t)
	defer cam.Close()
	if err := cam.StartExposure(); err != nil {
		t.Fatal(err)
	}
	calls := sim.CallCount("SetQHYCCDParam")
	err := cam.Params().Write(qhy.ParamGain, 5)
	if !errors.Is(err, qhy.ErrInvalidState) {
		t.Errorf("expected InvalidState got %v", err)
	}
	if sim.CallCount("SetQHYCCDParam") != calls {
		t.Errorf("expected no SDK call for a refused write")
	}
	cam.Cancel()
}

func TestClosedIsTerminal(t *testing.T) {
	cam, sim := openSmall(t)
	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	if sim.Loaded() {
		t.Errorf("expected the SDK to be released")
	}
	if cam.State() != qhy.StateClosed {
		t.Errorf("expected Closed got %s", cam.State())
	}
	checks := map[string]error{
		"Close":         cam.Close(),
		"Cancel":        cam.Cancel(),
		"StartExposure": cam.StartExposure(),
		"Write":         cam.Params().Write(qhy.ParamGain, 1),
	}
	_, checks["Capture"] = cam.Capture(bg())
	_, checks["GetTemperature"] = cam.GetTemperature()
	for op, err := range checks {
		if !errors.Is(err, qhy.ErrClosed) {
			t.Errorf("%s: expected Closed got %v", op, err)
		}
	}
}

func TestCloseFailureFaults(t *testing.T) {
	cam, sim := openSmall(t)
	sim.Lock()
	sim.Codes["CloseQHYCCD"] = -1
	sim.Unlock()
	if err := cam.Close(); err == nil {
		t.Fatal("expected close to fail")
	}
	if cam.State() != qhy.StateFaulted {
		t.Errorf("expected Faulted got %s", cam.State())
	}
	sim.Lock()
	delete(sim.Codes, "CloseQHYCCD")
	sim.Unlock()
	if err := cam.Close(); err != nil {
		t.Errorf("expected close from Faulted to succeed, got %v", err)
	}
	if cam.State() != qhy.StateClosed {
		t.Errorf("expected Closed got %s", cam.State())
	}
}

func TestReleaseFailureStillCloses(t *testing.T) {
	cam, sim := openSmall(t)
	sim.Lock()
	sim.Codes["ReleaseQHYCCDResource"] = -11
	sim.Unlock()
	err := cam.Close()
	if !qhy.IsKind(err, qhy.KindReleaseResource) {
		t.Errorf("expected ReleaseResource got %v", err)
	}
	if cam.State() != qhy.StateClosed {
		t.Errorf("expected Closed got %s", cam.State())
	}
}

func TestThermal(t *testing.T) {
	cam, _ := openSmall(t)
	defer cam.Close()
	if err := cam.SetTemperatureSetpoint(-10); err != nil {
		t.Fatal(err)
	}
	sp, err := cam.GetTemperatureSetpoint()
	if err != nil || sp != -10 {
		t.Errorf("expected setpoint -10 got %g (%v)", sp, err)
	}
	t1, _ := cam.GetTemperature()
	t2, _ := cam.GetTemperature()
	if !(t2 < t1 && t1 < 20) {
		t.Errorf("expected the sensor to cool toward the setpoint, got %g then %g", t1, t2)
	}
}

// bare hides the Thermal methods of the simulator
type bare struct {
	qhy.Library
}

func TestThermalUnsupported(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Chip = smallChip
	cam, err := qhy.Open(bare{sim}, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	if _, err := cam.GetTemperature(); !errors.Is(err, qhy.ErrUnsupported) {
		t.Errorf("expected Unsupported got %v", err)
	}
}
