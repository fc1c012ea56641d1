package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// signaturePNG is a 1x1 transparent PNG used as the inspector signature.
const signaturePNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

var (
	drivers  = []string{"Maria Souza", "João Pereira", "Ana Lima", "Carlos Mendes", "Fernanda Alves"}
	types    = []string{"Carreta", "Bitrem", "Rodotrem", "Truck", "Toco"}
	routes   = []string{"Santos - Campinas", "Curitiba - Joinville", "Recife - Salvador", "Belo Horizonte - Vitória"}
	failures = []string{"Desgaste excessivo", "Trinca visível", "Não funciona", "Vazamento identificado", "Fixação solta"}
)

// Simulator drives complete inspections through the API.
type Simulator struct {
	BaseURL           string
	Token             string
	DeviceID          string
	NonConformingRate float64
	Pause             time.Duration
	client            *http.Client
	rng               *rand.Rand
}

type category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
		Kind  string `json:"kind"`
	} `json:"items"`
}

type result struct {
	InspectionID  string   `json:"inspection_id"`
	ReferenceCode string   `json:"reference_code"`
	Status        string   `json:"status"`
	Replayed      bool     `json:"replayed"`
	Warnings      []string `json:"warnings"`
}

func NewSimulator(baseURL, token, deviceID string, rate float64, seed int64) *Simulator {
	return &Simulator{
		BaseURL:           baseURL,
		Token:             token,
		DeviceID:          deviceID,
		NonConformingRate: rate,
		client:            &http.Client{Timeout: 10 * time.Second},
		rng:               rand.New(rand.NewSource(seed)),
	}
}

// authorizedRequest sends a JSON request with the device header and the
// optional bearer token, decoding the response into out when non-nil.
func (s *Simulator) authorizedRequest(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", s.DeviceID)
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (s *Simulator) pick(options []string) string {
	return options[s.rng.Intn(len(options))]
}

func (s *Simulator) plate() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := []byte("AAA0A00")
	for i := range b {
		if i == 3 || i == 5 || i == 6 {
			b[i] = byte('0' + s.rng.Intn(10))
		} else {
			b[i] = letters[s.rng.Intn(len(letters))]
		}
	}
	return string(b)
}

func (s *Simulator) pause(ctx context.Context) error {
	if s.Pause <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Pause):
		return nil
	}
}

// RunInspection performs one full inspection and returns the submission result.
func (s *Simulator) RunInspection(ctx context.Context) (*result, error) {
	var cat struct {
		Version    string     `json:"version"`
		Categories []category `json:"categories"`
	}
	if err := s.authorizedRequest(ctx, http.MethodGet, "/catalog", nil, &cat); err != nil {
		return nil, err
	}
	if err := s.authorizedRequest(ctx, http.MethodPost, "/timer/start", nil, nil); err != nil {
		return nil, err
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		if _, err := s.watchTimer(watchCtx); err != nil {
			log.WithError(err).Debug("Timer stream unavailable")
		}
	}()
	defer func() {
		stopWatch()
		<-watched
	}()

	form := map[string]string{
		"motorista":    s.pick(drivers),
		"placaCavalo":  s.plate(),
		"placaCarreta": s.plate(),
		"tipoVeiculo":  s.pick(types),
		"rota":         s.pick(routes),
		"dataEmissao":  time.Now().Format("2006-01-02"),
	}
	var started struct {
		VehicleID string `json:"vehicle_id"`
	}
	if err := s.authorizedRequest(ctx, http.MethodPost, "/sessions", form, &started); err != nil {
		return nil, err
	}
	vehicle := started.VehicleID
	log.WithFields(log.Fields{
		"vehicle_id": vehicle,
		"plate":      form["placaCavalo"],
		"driver":     form["motorista"],
		"catalog":    cat.Version,
	}).Info("Started inspection")

	for _, c := range cat.Categories {
		base := fmt.Sprintf("/sessions/%s/checklist/%s", vehicle, c.ID)
		if err := s.authorizedRequest(ctx, http.MethodGet, base, nil, nil); err != nil {
			return nil, err
		}
		failed := 0
		for _, item := range c.Items {
			itemPath := fmt.Sprintf("%s/items/%d", base, item.ID)
			if item.Kind == "odometer" {
				reading := strconv.Itoa(50000 + s.rng.Intn(900000))
				if err := s.authorizedRequest(ctx, http.MethodPatch, itemPath, map[string]string{"value": reading}, nil); err != nil {
					return nil, err
				}
				continue
			}
			if s.rng.Float64() >= s.NonConformingRate {
				if err := s.authorizedRequest(ctx, http.MethodPatch, itemPath, map[string]string{"status": "conforming"}, nil); err != nil {
					return nil, err
				}
				continue
			}

			failed++
			update := map[string]string{"status": "non_conforming", "observation": s.pick(failures)}
			if err := s.authorizedRequest(ctx, http.MethodPatch, itemPath, update, nil); err != nil {
				return nil, err
			}
			if err := s.capturePhoto(ctx, base, itemPath); err != nil {
				return nil, err
			}
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}
		log.WithFields(log.Fields{"vehicle_id": vehicle, "category": c.ID, "non_conforming": failed}).Info("Evaluated category")
	}

	var overview struct {
		Overall    string `json:"overall"`
		Finishable bool   `json:"finishable"`
	}
	if err := s.authorizedRequest(ctx, http.MethodGet, "/sessions/"+vehicle+"/categories", nil, &overview); err != nil {
		return nil, err
	}
	if !overview.Finishable {
		return nil, fmt.Errorf("inspection of %s is not finishable (overall %s)", vehicle, overview.Overall)
	}

	var res result
	if err := s.authorizedRequest(ctx, http.MethodPost, "/sessions/"+vehicle+"/submit", map[string]string{"signature": signaturePNG}, &res); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"vehicle_id":     vehicle,
		"inspection_id":  res.InspectionID,
		"reference_code": res.ReferenceCode,
		"status":         res.Status,
		"warnings":       len(res.Warnings),
	}).Info("Submitted inspection")
	return &res, nil
}

// watchTimer follows the server-sent timer events until ctx ends or the
// stream closes, logging a warning once when the budget expires.
func (s *Simulator) watchTimer(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/timer/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Device-ID", s.DeviceID)
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	// The stream outlives the request timeout of s.client.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("timer stream returned status %d", resp.StatusCode)
	}

	expired := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if expired || scanner.Text() != "event: expired" {
			continue
		}
		expired = true
		log.WithField("device", s.DeviceID).Warn("Inspection exceeded its time budget")
	}
	if ctx.Err() != nil {
		return expired, nil
	}
	return expired, scanner.Err()
}

// capturePhoto walks the camera round trip: request, deliver, reload.
func (s *Simulator) capturePhoto(ctx context.Context, checklistPath, itemPath string) error {
	if err := s.authorizedRequest(ctx, http.MethodPost, itemPath+"/photo-request", nil, nil); err != nil {
		return err
	}
	photos := map[string][]string{"photos": {signaturePNG}}
	if err := s.authorizedRequest(ctx, http.MethodPost, "/camera/photos", photos, nil); err != nil {
		return err
	}
	var view struct {
		Relayed int `json:"relayed"`
	}
	if err := s.authorizedRequest(ctx, http.MethodGet, checklistPath, nil, &view); err != nil {
		return err
	}
	if view.Relayed == 0 {
		return fmt.Errorf("photos for %s were not applied", itemPath)
	}
	return nil
}

// ReportDashboard logs the dashboard statistics. It needs a token.
func (s *Simulator) ReportDashboard(ctx context.Context) error {
	var ov struct {
		Stats struct {
			Total          int     `json:"total"`
			ConformityRate float64 `json:"conformity_rate"`
		} `json:"stats"`
		Alerts []json.RawMessage `json:"alerts"`
	}
	if err := s.authorizedRequest(ctx, http.MethodGet, "/dashboard", nil, &ov); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"total":           ov.Stats.Total,
		"conformity_rate": fmt.Sprintf("%.1f", ov.Stats.ConformityRate),
		"alerts":          len(ov.Alerts),
	}).Info("Dashboard summary")
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	deviceID := os.Getenv("SIM_DEVICE_ID")
	if deviceID == "" {
		deviceID = "simulator"
	}
	count := envInt("SIM_INSPECTIONS", 3)

	sim := NewSimulator(apiURL, os.Getenv("SIM_AUTH_TOKEN"), deviceID, envFloat("SIM_NONCONFORMING_RATE", 0.1), time.Now().UnixNano())
	sim.Pause = time.Duration(envInt("SIM_TICK_SECONDS", 0)) * time.Second

	log.WithFields(log.Fields{
		"api_url":     apiURL,
		"device":      deviceID,
		"inspections": count,
		"rate":        sim.NonConformingRate,
	}).Info("Starting inspection simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	done := 0
	for i := 0; i < count; i++ {
		if _, err := sim.RunInspection(ctx); err != nil {
			log.WithError(err).Error("Inspection failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		done++
	}
	log.WithField("submitted", done).Info("Inspection simulation completed")

	if sim.Token != "" {
		if err := sim.ReportDashboard(ctx); err != nil {
			log.WithError(err).Warn("Dashboard unavailable")
		}
	}
	if done == 0 {
		os.Exit(1)
	}
}
