package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
)

// ListenAndServe accepts connections on addr and services each on its own
// goroutine, mirroring the teacher's thread-per-connection shape in
// cmd/server/server.go without its RBAC/connection-limit machinery.
func ListenAndServe(addr string, srv *Server) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Printf("vfsd: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("vfsd: accept error: %v", err)
			continue
		}
		go handleConnection(conn, srv)
	}
}

// handleConnection reads one request per loop iteration: a "VERB PATH" line
// followed by zero or more body lines terminated by a blank line (the body
// section may be empty, but the blank terminator is always required, even for
// bodyless verbs like GET).
func handleConnection(conn net.Conn, srv *Server) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		requestLine, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		requestLine = strings.TrimRight(requestLine, "\r\n")
		if requestLine == "" {
			continue
		}

		parts := strings.SplitN(requestLine, " ", 2)
		if len(parts) != 2 {
			writeResponse(conn, errResponse(400, "invalid_request", "malformed request line"))
			continue
		}
		verb, path := parts[0], parts[1]

		var body bytes.Buffer
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				return
			}
			if strings.TrimRight(line, "\r\n") == "" {
				break
			}
			body.WriteString(line)
		}

		resp := srv.HandleLine(verb, path, body.Bytes())
		writeResponse(conn, resp)
	}
}

func writeResponse(w io.Writer, resp Response) {
	bodyBytes, err := json.Marshal(resp.Body)
	if err != nil {
		bodyBytes = []byte(`{"error":"failed to encode response body","error_type":"internal_error"}`)
	}
	fmt.Fprintf(w, "%d\n%s\n\n", resp.Status, bodyBytes)
}
