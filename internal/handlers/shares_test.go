package handlers

import (
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/skyvault/backend/internal/models"
)

func createPublicLink(t *testing.T, env *testEnv, token, fileID string) map[string]interface{} {
	t.Helper()

	resp := env.request(t, fiber.MethodPost, "/api/shares", token, fiber.Map{"fileId": fileID})
	if resp.StatusCode != fiber.StatusCreated && resp.StatusCode != fiber.StatusOK {
		t.Fatalf("creating share: status %d", resp.StatusCode)
	}
	return dataField(t, decodeBody(t, resp))
}

func TestPublicLink(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "owner@test.dev", "Owner")
	file := uploadFile(t, env, token, "shared.txt", "shared content", "")
	fileID := file["id"].(string)

	var shareToken string

	t.Run("creates a link with a share url", func(t *testing.T) {
		data := createPublicLink(t, env, token, fileID)
		share := data["share"].(map[string]interface{})
		shareToken = share["token"].(string)
		if len(shareToken) != 64 {
			t.Fatalf("token length = %d, want 64", len(shareToken))
		}
		url := data["shareUrl"].(string)
		if !strings.HasSuffix(url, "/shares/"+shareToken) {
			t.Fatalf("shareUrl = %q, want suffix /shares/%s", url, shareToken)
		}
	})

	t.Run("creation is idempotent", func(t *testing.T) {
		data := createPublicLink(t, env, token, fileID)
		share := data["share"].(map[string]interface{})
		if share["token"] != shareToken {
			t.Fatalf("second create minted a new token")
		}
	})

	t.Run("resolves without authentication", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/"+shareToken, "", nil)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeBody(t, resp))
		fileData := data["file"].(map[string]interface{})
		if fileData["name"] != "shared.txt" {
			t.Fatalf("file name = %v, want shared.txt", fileData["name"])
		}
		owner := data["owner"].(map[string]interface{})
		if owner["fullName"] != "Owner" {
			t.Fatalf("owner = %v, want Owner", owner["fullName"])
		}
	})

	t.Run("download hands out a presigned url", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/"+shareToken+"/download", "", nil)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeBody(t, resp))
		if !strings.Contains(data["url"].(string), "storage.test") {
			t.Fatalf("url = %v, want presigned url", data["url"])
		}
	})

	t.Run("unknown token reads as missing", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/"+strings.Repeat("ab", 32), "", nil)
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("trashed file hides the share", func(t *testing.T) {
		resp := env.request(t, fiber.MethodDelete, "/api/files/"+fileID, token, nil)
		assertStatus(t, resp, fiber.StatusOK)

		resp = env.request(t, fiber.MethodGet, "/api/shares/"+shareToken, "", nil)
		assertError(t, resp, fiber.StatusNotFound)

		resp = env.request(t, fiber.MethodPost, "/api/files/"+fileID+"/restore", token, nil)
		assertStatus(t, resp, fiber.StatusOK)
	})

	t.Run("unknown file reads as missing", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares", token, fiber.Map{
			"fileId": "0b7a8c7e-41dd-4f57-9f4e-52f1a29f97e4",
		})
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("malformed file id is rejected", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares", token, fiber.Map{"fileId": "not-a-uuid"})
		assertError(t, resp, fiber.StatusBadRequest)
	})

	t.Run("cannot share a trashed file", func(t *testing.T) {
		other := uploadFile(t, env, token, "gone.txt", "x", "")
		otherID := other["id"].(string)
		resp := env.request(t, fiber.MethodDelete, "/api/files/"+otherID, token, nil)
		assertStatus(t, resp, fiber.StatusOK)

		resp = env.request(t, fiber.MethodPost, "/api/shares", token, fiber.Map{"fileId": otherID})
		assertError(t, resp, fiber.StatusBadRequest)
	})
}

func TestPublicLinkRevoke(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "owner@test.dev", "Owner")
	_, otherToken := env.createUser(t, "other@test.dev", "Other")

	file := uploadFile(t, env, token, "shared.txt", "x", "")
	data := createPublicLink(t, env, token, file["id"].(string))
	share := data["share"].(map[string]interface{})
	shareID := share["id"].(string)
	shareToken := share["token"].(string)

	t.Run("only the owner may revoke", func(t *testing.T) {
		resp := env.request(t, fiber.MethodDelete, "/api/shares/"+shareID, otherToken, nil)
		assertError(t, resp, fiber.StatusForbidden)
	})

	t.Run("revoked link stops resolving", func(t *testing.T) {
		resp := env.request(t, fiber.MethodDelete, "/api/shares/"+shareID, token, nil)
		assertStatus(t, resp, fiber.StatusOK)

		resp = env.request(t, fiber.MethodGet, "/api/shares/"+shareToken, "", nil)
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("a new link can be minted afterwards", func(t *testing.T) {
		fresh := createPublicLink(t, env, token, file["id"].(string))
		freshShare := fresh["share"].(map[string]interface{})
		if freshShare["token"] == shareToken {
			t.Fatal("new link reused the revoked token")
		}
	})
}

func TestDirectShareLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner@test.dev", "Owner")
	recipient, recipientToken := env.createUser(t, "friend@test.dev", "Friend")
	_, strangerToken := env.createUser(t, "stranger@test.dev", "Stranger")

	file := uploadFile(t, env, ownerToken, "handoff.txt", "take this", "")
	fileID := file["id"].(string)

	conn := &fakePushConn{}
	env.presence.Register(recipient.ID, conn)

	var shareID string

	t.Run("creates a pending grant and notifies the recipient", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         fileID,
			"recipientEmail": "friend@test.dev",
		})
		assertStatus(t, resp, fiber.StatusCreated)
		data := dataField(t, decodeBody(t, resp))
		shareID = data["id"].(string)
		if data["status"] != "pending" {
			t.Fatalf("status = %v, want pending", data["status"])
		}

		events := conn.received()
		if len(events) != 1 {
			t.Fatalf("got %d push events, want 1", len(events))
		}
		if events[0].Event != "share-received" {
			t.Fatalf("event = %q, want share-received", events[0].Event)
		}
		payload := events[0].Data.(fiber.Map)
		if payload["fileName"] != "handoff.txt" {
			t.Fatalf("payload fileName = %v", payload["fileName"])
		}
		if payload["ownerEmail"] != "owner@test.dev" {
			t.Fatalf("payload ownerEmail = %v", payload["ownerEmail"])
		}
	})

	t.Run("duplicate grant is rejected", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         fileID,
			"recipientEmail": "friend@test.dev",
		})
		assertError(t, resp, fiber.StatusBadRequest)
	})

	t.Run("self share is rejected", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         fileID,
			"recipientEmail": "owner@test.dev",
		})
		assertError(t, resp, fiber.StatusBadRequest)
	})

	t.Run("unknown recipient reads as missing", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         fileID,
			"recipientEmail": "ghost@test.dev",
		})
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("unknown file reads as missing", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         "5c9a1f7e-8a3b-4f89-9f1e-3d2b6c4a8e10",
			"recipientEmail": "friend@test.dev",
		})
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("pending grant is listed for the recipient", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/direct/pending", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		grants := dataList(t, decodeBody(t, resp))
		if len(grants) != 1 {
			t.Fatalf("got %d pending grants, want 1", len(grants))
		}
	})

	t.Run("download requires acceptance", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/direct/"+shareID+"/download", recipientToken, nil)
		assertError(t, resp, fiber.StatusBadRequest)
	})

	t.Run("only the recipient may accept", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct/"+shareID+"/accept", strangerToken, nil)
		assertError(t, resp, fiber.StatusForbidden)
	})

	t.Run("accept moves the grant to received", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct/"+shareID+"/accept", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeBody(t, resp))
		if data["status"] != "accepted" {
			t.Fatalf("status = %v, want accepted", data["status"])
		}

		resp = env.request(t, fiber.MethodGet, "/api/shares/direct/pending", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		if pending := dataList(t, decodeBody(t, resp)); len(pending) != 0 {
			t.Fatalf("got %d pending grants, want 0", len(pending))
		}

		resp = env.request(t, fiber.MethodGet, "/api/shares/direct/received", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		if received := dataList(t, decodeBody(t, resp)); len(received) != 1 {
			t.Fatalf("got %d received grants, want 1", len(received))
		}
	})

	t.Run("accept is not repeatable", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct/"+shareID+"/accept", recipientToken, nil)
		assertError(t, resp, fiber.StatusBadRequest)
	})

	t.Run("accepted recipient can download", func(t *testing.T) {
		resp := env.request(t, fiber.MethodGet, "/api/shares/direct/"+shareID+"/download", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeBody(t, resp))
		if !strings.Contains(data["url"].(string), "storage.test") {
			t.Fatalf("url = %v, want presigned url", data["url"])
		}
	})
}

func TestDirectShareReject(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner@test.dev", "Owner")
	recipient, recipientToken := env.createUser(t, "friend@test.dev", "Friend")

	file := uploadFile(t, env, ownerToken, "handoff.txt", "x", "")
	fileID := file["id"].(string)

	resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
		"fileId":         fileID,
		"recipientEmail": recipient.Email,
	})
	assertStatus(t, resp, fiber.StatusCreated)
	shareID := dataField(t, decodeBody(t, resp))["id"].(string)

	t.Run("reject succeeds", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct/"+shareID+"/reject", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
	})

	t.Run("rejected grant vanishes from every read path", func(t *testing.T) {
		for _, path := range []string{"/api/shares/direct/pending", "/api/shares/direct/received"} {
			resp := env.request(t, fiber.MethodGet, path, recipientToken, nil)
			assertStatus(t, resp, fiber.StatusOK)
			if grants := dataList(t, decodeBody(t, resp)); len(grants) != 0 {
				t.Fatalf("%s returned %d grants, want 0", path, len(grants))
			}
		}

		resp := env.request(t, fiber.MethodGet, "/api/shares/my", ownerToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeBody(t, resp))
		if grants := data["directShares"].([]interface{}); len(grants) != 0 {
			t.Fatalf("owner still sees %d direct shares", len(grants))
		}

		resp = env.request(t, fiber.MethodPost, "/api/shares/direct/"+shareID+"/accept", recipientToken, nil)
		assertError(t, resp, fiber.StatusNotFound)
	})

	t.Run("rejected grant is kept as an audit row", func(t *testing.T) {
		var row models.DirectGrant
		if err := env.db.First(&row, "id = ?", shareID).Error; err != nil {
			t.Fatalf("loading grant: %v", err)
		}
		if row.Status != models.GrantStatusRejected {
			t.Fatalf("status = %s, want rejected", row.Status)
		}
	})

	t.Run("the same file can be shared again", func(t *testing.T) {
		resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
			"fileId":         fileID,
			"recipientEmail": recipient.Email,
		})
		assertStatus(t, resp, fiber.StatusCreated)
	})
}

func TestDirectShareRevokeByOwner(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner@test.dev", "Owner")
	recipient, recipientToken := env.createUser(t, "friend@test.dev", "Friend")

	file := uploadFile(t, env, ownerToken, "handoff.txt", "x", "")
	resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
		"fileId":         file["id"],
		"recipientEmail": recipient.Email,
	})
	assertStatus(t, resp, fiber.StatusCreated)
	shareID := dataField(t, decodeBody(t, resp))["id"].(string)

	t.Run("recipient cannot revoke", func(t *testing.T) {
		resp := env.request(t, fiber.MethodDelete, "/api/shares/"+shareID, recipientToken, nil)
		assertError(t, resp, fiber.StatusForbidden)
	})

	t.Run("owner revoke removes the grant", func(t *testing.T) {
		resp := env.request(t, fiber.MethodDelete, "/api/shares/"+shareID, ownerToken, nil)
		assertStatus(t, resp, fiber.StatusOK)

		resp = env.request(t, fiber.MethodGet, "/api/shares/direct/pending", recipientToken, nil)
		assertStatus(t, resp, fiber.StatusOK)
		if grants := dataList(t, decodeBody(t, resp)); len(grants) != 0 {
			t.Fatalf("got %d pending grants, want 0", len(grants))
		}
	})
}

func TestListMyShares(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.createUser(t, "owner@test.dev", "Owner")
	recipient, _ := env.createUser(t, "friend@test.dev", "Friend")

	fileA := uploadFile(t, env, ownerToken, "a.txt", "x", "")
	fileB := uploadFile(t, env, ownerToken, "b.txt", "y", "")

	createPublicLink(t, env, ownerToken, fileA["id"].(string))
	resp := env.request(t, fiber.MethodPost, "/api/shares/direct", ownerToken, fiber.Map{
		"fileId":         fileB["id"],
		"recipientEmail": recipient.Email,
	})
	assertStatus(t, resp, fiber.StatusCreated)

	resp = env.request(t, fiber.MethodGet, "/api/shares/my", ownerToken, nil)
	assertStatus(t, resp, fiber.StatusOK)
	data := dataField(t, decodeBody(t, resp))
	if links := data["publicLinks"].([]interface{}); len(links) != 1 {
		t.Fatalf("got %d public links, want 1", len(links))
	}
	if grants := data["directShares"].([]interface{}); len(grants) != 1 {
		t.Fatalf("got %d direct shares, want 1", len(grants))
	}
}
