package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// decode reads a JSON body. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := decode(r, &req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.engine.Introspect(r.Context(), req.toSourceConfig(), req.Table)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := decode(r, &req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	names, err := s.engine.Tables(r.Context(), req.toSourceConfig())
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	jsonResponse(w, http.StatusOK, TablesResponse{Schema: req.Schema, Tables: names})
}

// handleInsert generates rows for one table: row_count rows per transaction,
// tnx transactions in sequence.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	rows, err := queryInt(r, "row_count", 100)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	txns, err := queryInt(r, "tnx", 1)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if rows < 1 || txns < 1 {
		errorResponse(w, http.StatusBadRequest, "row_count and tnx must be at least 1")
		return
	}

	var req ConnectionRequest
	if err := decode(r, &req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Table == "" {
		errorResponse(w, http.StatusBadRequest, "table is required")
		return
	}

	gen := InsertAllRequest{ConnectionRequest: req, RowsPerTable: rows, Transactions: txns}
	greq, err := gen.toGenerateRequest(s.engine.Config.Sink)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	greq.Table = req.Table

	result, err := s.engine.Generate(r.Context(), greq)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleInsertAll(w http.ResponseWriter, r *http.Request) {
	var req InsertAllRequest
	if err := decode(r, &req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	greq, err := req.toGenerateRequest(s.engine.Config.Sink)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}

	result, err := s.engine.Generate(r.Context(), greq)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.engine.Runs(limit)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	resp := RunsResponse{Runs: make([]RunSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, summarize(run))
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.RunByID(r.PathValue("id"))
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := decode(r, &req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := s.engine.InvalidateKeys(req.toSourceConfig(), req.Table)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, InvalidateResponse{Invalidated: n})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
