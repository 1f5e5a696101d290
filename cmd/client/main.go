/*
Interactive framed-TCP test client. Speaks the same wire format the
gateway's TCP acceptor parses (protocol.SerializeTCP /
protocol.NewTCPParser): connect, send auth, read stdin commands, print
incoming chat.
*/
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/nightfall-labs/imgw/pkg/idgen"
	"github.com/nightfall-labs/imgw/protocol"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:8080", "gateway TCP address")
	token := flag.String("token", "", "JWT login token")
	flag.Parse()

	if *token == "" {
		log.Fatal("a -token is required (issue one via the gateway's Authenticator)")
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected to %s", *serverAddr)

	go receiveLoop(conn)

	sendLogin(conn, *token)
	go heartbeatLoop(conn)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("\ncommands:")
	fmt.Println("  send <user_id> <message> - send a chat message")
	fmt.Println("  logout - log out without disconnecting")
	fmt.Println("  quit - exit")
	fmt.Println()

	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, " ", 3)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit":
			fmt.Println("exiting...")
			return
		case "logout":
			sendLogout(conn)
		case "send":
			if len(parts) < 3 {
				fmt.Println("usage: send <user_id> <message>")
				continue
			}
			sendChat(conn, parts[1], parts[2])
		default:
			fmt.Println("unknown command, use 'send <user_id> <message>', 'logout', or 'quit'")
		}
	}
}

func receiveLoop(conn net.Conn) {
	ids := idgen.NewSource()
	parser := protocol.NewTCPParser(0, ids)
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("receive error: %v", err)
			return
		}

		messages, err := parser.Parse(buf[:n])
		if err != nil {
			log.Printf("parse error: %v", err)
			return
		}

		for _, msg := range messages {
			handleMessage(conn, msg)
		}
	}
}

func handleMessage(conn net.Conn, msg *protocol.Message) {
	if msg.TCP == nil {
		return
	}

	switch msg.TCP.MessageKind {
	case protocol.MsgLoginResponse:
		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		json.Unmarshal(msg.Payload, &resp)
		if resp.Success {
			log.Printf("login ok: %s", resp.Message)
		} else {
			log.Printf("login failed: %s", resp.Message)
		}

	case protocol.MsgChat:
		var chatMsg struct {
			FromUserID string `json:"from_user_id"`
			Content    string `json:"content"`
			SeqID      int64  `json:"seq_id"`
		}
		json.Unmarshal(msg.Payload, &chatMsg)
		fmt.Printf("\n[%s] -> %s\n", chatMsg.FromUserID, chatMsg.Content)
		sendAck(conn, chatMsg.SeqID)

	case protocol.MsgHeartbeat:
		// server heartbeat ack, nothing to do

	case protocol.MsgKick:
		log.Printf("server requested reconnect: %s", string(msg.Payload))

	case protocol.MsgError:
		log.Printf("server error: %s", string(msg.Payload))

	default:
		log.Printf("unhandled message kind %d", msg.TCP.MessageKind)
	}
}

func sendLogin(conn net.Conn, token string) {
	data, _ := json.Marshal(map[string]string{"token": token})
	sendFrame(conn, protocol.MsgLoginRequest, data)
}

func sendLogout(conn net.Conn) {
	sendFrame(conn, protocol.MsgLogout, nil)
}

func sendChat(conn net.Conn, toUserID, content string) {
	data, _ := json.Marshal(map[string]string{
		"to_user_id": toUserID,
		"content":    content,
	})
	sendFrame(conn, protocol.MsgChat, data)
	log.Printf("-> [%s] %s", toUserID, content)
}

func sendAck(conn net.Conn, seqID int64) {
	data, _ := json.Marshal(map[string]int64{"seq_id": seqID})
	sendFrame(conn, protocol.MsgAck, data)
}

func heartbeatLoop(conn net.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := sendFrame(conn, protocol.MsgHeartbeat, nil); err != nil {
			return
		}
	}
}

func sendFrame(conn net.Conn, kind uint16, payload []byte) error {
	frame, err := protocol.SerializeTCP(kind, payload)
	if err != nil {
		return err
	}
	_, err = conn.Write(frame)
	return err
}
