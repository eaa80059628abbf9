package server

import (
	"testing"

	"egaku/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentLifecycle(t *testing.T) {
	env := setupServer(t)
	ownerToken, _ := env.register(t, "author")
	readerToken, _ := env.register(t, "reader")
	strangerToken, _ := env.register(t, "stranger")
	adminToken, adminID := env.register(t, "root")
	env.makeAdmin(t, adminID)

	id := env.submitArticle(t, ownerToken, "Talk to me", "comment please")

	out := env.post(t, "/api/comment/send", readerToken, fiber.Map{
		"id": id, "type": models.KindArticle, "content": "too early",
	})
	assert.Equal(t, "NO_SUBMISSION", out.errorCode())

	env.approve(t, adminToken, id, models.KindArticle)

	sent := env.mustPost(t, "/api/comment/send", readerToken, fiber.Map{
		"id": id, "type": models.KindArticle, "content": "lovely piece",
	})
	commentID := sent["id"].(string)
	require.NotEmpty(t, commentID)

	out = env.post(t, "/api/comment/send", readerToken, fiber.Map{
		"id": id, "type": models.KindArticle, "content": "",
	})
	assert.Equal(t, "PARAM_ERROR", out.errorCode())

	t.Run("reply counter", func(t *testing.T) {
		info := env.mustPost(t, "/api/user/getInfo", ownerToken, nil)
		assert.Equal(t, map[string]any{"reply": float64(1)}, info["msgNum"])

		replies := env.mustPost(t, "/api/user/getReply", ownerToken, fiber.Map{"pageNum": 1, "pageSize": 10})
		require.Equal(t, 1, listLen(replies))
		reply := replies["dataList"].([]any)[0].(map[string]any)
		assert.Equal(t, "lovely piece", reply["content"])
		assert.Equal(t, "reader", reply["account"])
		assert.Equal(t, id, reply["submissionId"])

		info = env.mustPost(t, "/api/user/getInfo", ownerToken, nil)
		assert.Equal(t, map[string]any{"reply": float64(0)}, info["msgNum"])
	})

	t.Run("can delete", func(t *testing.T) {
		canDelete := func(token string) any {
			list := env.mustPost(t, "/api/comment/get", token, fiber.Map{"id": id, "type": models.KindArticle})
			require.Equal(t, 1, listLen(list))
			return list["dataList"].([]any)[0].(map[string]any)["canDelete"]
		}
		assert.Equal(t, true, canDelete(readerToken))
		assert.Equal(t, true, canDelete(ownerToken))
		assert.Equal(t, true, canDelete(adminToken))
		assert.Equal(t, false, canDelete(strangerToken))
		assert.Equal(t, false, canDelete(""))
	})

	out = env.post(t, "/api/comment/delete", strangerToken, fiber.Map{"id": commentID})
	assert.Equal(t, "NO_PERMISSION", out.errorCode())

	env.mustPost(t, "/api/comment/delete", ownerToken, fiber.Map{"id": commentID})
	list := env.mustPost(t, "/api/comment/get", "", fiber.Map{"id": id, "type": models.KindArticle})
	assert.Equal(t, float64(0), list["total"])
}

func TestOwnCommentDoesNotRemind(t *testing.T) {
	env := setupServer(t)
	ownerToken, _ := env.register(t, "author")
	adminToken, adminID := env.register(t, "root")
	env.makeAdmin(t, adminID)

	id := env.submitArticle(t, ownerToken, "Monologue", "talking to myself")
	env.approve(t, adminToken, id, models.KindArticle)

	env.mustPost(t, "/api/comment/send", ownerToken, fiber.Map{
		"id": id, "type": models.KindArticle, "content": "replying to myself",
	})
	info := env.mustPost(t, "/api/user/getInfo", ownerToken, nil)
	assert.Equal(t, map[string]any{"reply": float64(0)}, info["msgNum"])
}

func TestCollectionEndpoints(t *testing.T) {
	env := setupServer(t)
	ownerToken, _ := env.register(t, "author")
	readerToken, _ := env.register(t, "reader")
	adminToken, adminID := env.register(t, "root")
	env.makeAdmin(t, adminID)

	id := env.submitArticle(t, ownerToken, "Keeper", "worth saving")
	ref := fiber.Map{"id": id, "type": models.KindArticle}

	out := env.post(t, "/api/user/collect", readerToken, ref)
	assert.Equal(t, "NO_SUBMISSION", out.errorCode())
	env.mustPost(t, "/api/user/collect", ownerToken, ref)

	env.approve(t, adminToken, id, models.KindArticle)
	env.mustPost(t, "/api/user/collect", readerToken, ref)
	env.mustPost(t, "/api/user/collect", readerToken, ref)

	data := env.mustPost(t, "/api/user/isCollected", readerToken, ref)
	assert.Equal(t, true, data["collected"])

	list := env.mustPost(t, "/api/user/getCollection", readerToken, fiber.Map{"pageNum": 1, "pageSize": 10})
	assert.Equal(t, float64(1), list["total"])
	require.Equal(t, 1, listLen(list))
	item := list["dataList"].([]any)[0].(map[string]any)
	assert.Equal(t, id, item["submissionId"])
	assert.Equal(t, "Keeper", item["title"])

	// A rejected target drops out of the reader's list but stays in the author's.
	env.mustPost(t, "/api/common/updateStatus", adminToken, fiber.Map{
		"id": id, "type": models.KindArticle, "status": models.StatusRejected,
	})
	list = env.mustPost(t, "/api/user/getCollection", readerToken, fiber.Map{"pageNum": 1, "pageSize": 10})
	assert.Equal(t, float64(0), list["total"])
	assert.Zero(t, listLen(list))
	list = env.mustPost(t, "/api/user/getCollection", ownerToken, fiber.Map{"pageNum": 1, "pageSize": 10})
	assert.Equal(t, float64(1), list["total"])

	env.mustPost(t, "/api/user/delCollection", readerToken, ref)
	data = env.mustPost(t, "/api/user/isCollected", readerToken, ref)
	assert.Equal(t, false, data["collected"])

	out = env.post(t, "/api/user/collect", readerToken, fiber.Map{"id": id, "type": 5})
	assert.Equal(t, "PARAM_ERROR", out.errorCode())
}
