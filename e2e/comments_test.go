package e2e

import (
	"net/http"
	"testing"
)

func TestComment_FullLifecycle(t *testing.T) {
	ta := setupApp(t)

	created := submitPost(t, ta, "user-1")
	postID := created["id"].(string)

	resp, err := submitComment(t, ta, "user-2", postID)
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	comment := parseJSON(t, resp)
	commentID, _ := comment["id"].(string)
	if commentID == "" {
		t.Fatalf("no id in response: %v", comment)
	}
	if comment["parentId"] != postID {
		t.Errorf("parent id: got %v", comment["parentId"])
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/comments/"+commentID+"/status", nil, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	status := parseJSON(t, resp)
	if status["status"] != "ready" {
		t.Fatalf("expected ready, got %v (error=%v)", status["status"], status["errorMessage"])
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/posts/"+postID+"/comments", nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	listing := parseJSON(t, resp)
	comments, _ := listing["comments"].([]interface{})
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	row := comments[0].(map[string]interface{})
	if row["id"] != commentID || row["postId"] != postID {
		t.Errorf("unexpected comment row: %v", row)
	}
	if row["audioUrl"] != "/api/audio/"+commentID {
		t.Errorf("audio url: got %v", row["audioUrl"])
	}

	// The post detail carries the comment count.
	resp, err = doRequest(ta.app, http.MethodGet, "/api/posts/"+postID, nil, nil)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	detail := parseJSON(t, resp)
	if detail["commentCount"] != float64(1) {
		t.Errorf("comment count: got %v", detail["commentCount"])
	}

	// Comments never appear as posts.
	resp, err = doRequest(ta.app, http.MethodGet, "/api/posts/"+commentID, nil, nil)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestComment_ParentMustBeReady(t *testing.T) {
	ta := setupApp(t)

	// Parent fails its attempt; replies are rejected until it is ready.
	ta.music.planErr = errMusicDown
	created := submitPost(t, ta, "user-1")
	postID := created["id"].(string)
	ta.music.planErr = nil

	resp, err := submitComment(t, ta, "user-2", postID)
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)

	resp, err = submitComment(t, ta, "user-2", "missing")
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestComment_NoReplyToReply(t *testing.T) {
	ta := setupApp(t)

	created := submitPost(t, ta, "user-1")
	postID := created["id"].(string)

	resp, err := submitComment(t, ta, "user-2", postID)
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	commentID := parseJSON(t, resp)["id"].(string)

	resp, err = submitComment(t, ta, "user-3", commentID)
	if err != nil {
		t.Fatalf("submit reply to reply: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestComment_RecreateAndDelete(t *testing.T) {
	ta := setupApp(t)

	created := submitPost(t, ta, "user-1")
	postID := created["id"].(string)

	resp, err := submitComment(t, ta, "user-2", postID)
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	commentID := parseJSON(t, resp)["id"].(string)

	// Only the comment's owner may recreate it.
	resp, err = doRequest(ta.app, http.MethodPost, "/api/comments/"+commentID+"/recreate", nil, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "user-1"),
	})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	assertStatus(t, resp, http.StatusForbidden)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/comments/"+commentID+"/recreate", nil, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "user-2"),
	})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/comments/"+commentID+"/status", nil, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status := parseJSON(t, resp); status["status"] != "ready" {
		t.Fatalf("expected ready after recreate, got %v", status["status"])
	}

	resp, err = doRequest(ta.app, http.MethodDelete, "/api/posts/"+postID+"/comments/"+commentID, nil, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "user-2"),
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/comments/"+commentID+"/status", nil, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDeletePost_CascadesComments(t *testing.T) {
	ta := setupApp(t)

	created := submitPost(t, ta, "user-1")
	postID := created["id"].(string)

	resp, err := submitComment(t, ta, "user-2", postID)
	if err != nil {
		t.Fatalf("submit comment: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	commentID := parseJSON(t, resp)["id"].(string)

	resp, err = doRequest(ta.app, http.MethodDelete, "/api/posts/"+postID, nil, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "user-1"),
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/comments/"+commentID+"/status", nil, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
