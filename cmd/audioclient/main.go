package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"voice-search-assistant/internal/assistant"
	httpapi "voice-search-assistant/internal/http"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:8080", "HTTP API address")
	sessionID := flag.String("session", "", "Existing session ID (a new one is created when empty)")
	language := flag.String("language", "en-US", "Recognition language")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])
	log.Printf("WAV file: format=%d sampleRate=%d bitsPerSample=%d", audioFormat, sampleRate, bitsPerSample)
	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}

	id := *sessionID
	if id == "" {
		id = createSession(*serverAddr, *language)
	}

	url := "ws://" + *serverAddr + "/v1/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", url)

	states := make(chan assistant.State, 16)
	go func() {
		defer close(states)
		for {
			var msg httpapi.WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case httpapi.MessageError:
				log.Printf("Server error: %s", msg.Error)
			case httpapi.MessageState:
				// Keep only the newest states when the reader falls behind.
				select {
				case states <- *msg.State:
				default:
					select {
					case <-states:
					default:
					}
					states <- *msg.State
				}
			}
		}
	}()

	if err := conn.WriteJSON(httpapi.WSCommand{Type: httpapi.CommandMic}); err != nil {
		log.Fatalf("Failed to start mic: %v", err)
	}
	last, ok := waitFor(states, func(st assistant.State) bool { return st.Listening })
	if !ok {
		return
	}

	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
		chunkNum++
		totalBytes += int64(n)
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); err != nil {
			log.Fatalf("Failed to send audio: %v", err)
		}
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}
		last = drain(states, last)
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))

	// Toggling the mic again asks the recognizer to finish the utterance.
	if last = drain(states, last); last.Listening {
		if err := conn.WriteJSON(httpapi.WSCommand{Type: httpapi.CommandMic}); err != nil {
			log.Fatalf("Failed to stop mic: %v", err)
		}
	}
	st := last
	if st.Listening {
		if st, ok = waitFor(states, func(st assistant.State) bool { return !st.Listening }); !ok {
			return
		}
	}
	log.Printf("Transcript: %q", st.Input)
	if st.Error != "" {
		log.Printf("Recognition error: %s", st.Error)
	}
}

func createSession(addr, language string) string {
	body, _ := json.Marshal(assistant.CreateOptions{Language: language})
	resp, err := http.Post("http://"+addr+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("Failed to create session: status %d", resp.StatusCode)
	}

	var st assistant.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		log.Fatalf("Failed to decode session: %v", err)
	}
	log.Printf("Created session %s", st.SessionID)
	return st.SessionID
}

func waitFor(states <-chan assistant.State, match func(assistant.State) bool) (assistant.State, bool) {
	timeout := time.After(30 * time.Second)
	for {
		select {
		case st, ok := <-states:
			if !ok {
				log.Println("Connection closed")
				return assistant.State{}, false
			}
			if match(st) {
				return st, true
			}
		case <-timeout:
			log.Println("Timed out waiting for session state")
			return assistant.State{}, false
		}
	}
}

// drain returns the newest queued state, or last when none is queued.
func drain(states <-chan assistant.State, last assistant.State) assistant.State {
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return last
			}
			last = st
		default:
			return last
		}
	}
}
