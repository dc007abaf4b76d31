package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/auth"
	"site-timelapse/pkg/database"
	"site-timelapse/pkg/errs"
)

// HandleBuildIndex rewrites the side file of one camera from a full listing.
func (h *Handlers) HandleBuildIndex(c *gin.Context) {
	tags, err := cameraTags(c)
	if err != nil {
		respondError(c, err)
		return
	}
	n, err := h.index.BuildSideFile(c.Request.Context(), tags)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("camera", tags.String()).Int("frames", n).Msg("✅ Side file rebuilt")
	c.JSON(http.StatusOK, gin.H{"camera": tags, "frames": n})
}

func (h *Handlers) HandleListUsers(c *gin.Context) {
	users, err := database.GetAllUsers()
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, len(users))
	for i, u := range users {
		out[i] = gin.H{"id": u.ID, "username": u.Username, "isAdmin": u.IsAdmin}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *Handlers) HandleCreateUser(c *gin.Context) {
	var form struct {
		Username string   `form:"username" json:"username"`
		Password string   `form:"password" json:"password"`
		IsAdmin  formBool `form:"isAdmin" json:"isAdmin"`
	}
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, errs.Validation("%v", err))
		return
	}
	if err := database.CreateUser(form.Username, form.Password, bool(form.IsAdmin)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Successfully created user: " + form.Username})
}

// HandleDeleteUser deletes ?username= (or the form field). Admins cannot
// delete themselves.
func (h *Handlers) HandleDeleteUser(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		username = c.PostForm("username")
	}
	if username == "" {
		respondError(c, errs.Validation("username is required"))
		return
	}
	if user, ok := auth.CurrentUser(c); ok && user.Username == username {
		respondError(c, errs.Validation("you cannot delete your own account"))
		return
	}
	if err := database.DeleteUser(username); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully deleted user: " + username})
}

func (h *Handlers) HandleChangePassword(c *gin.Context) {
	var form struct {
		Username string `form:"username" json:"username"`
		Password string `form:"password" json:"password"`
	}
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, errs.Validation("%v", err))
		return
	}
	if form.Username == "" {
		respondError(c, errs.Validation("username is required"))
		return
	}
	if err := database.UpdateUserPassword(form.Username, form.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully updated password for user: " + form.Username})
}
