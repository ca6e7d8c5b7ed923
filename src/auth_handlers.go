package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"pbs/src/db"
	"pbs/src/lib"
	"pbs/src/models"
	"pbs/src/types"
	"pbs/src/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func authHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	auth := g.Group("/auth")
	auth.
		POST("/register", func(ctx *gin.Context) {
			var body types.RegisterUserRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			hash, err := utils.HashPassword(body.Password)
			if err != nil {
				log.Printf("Error hashing password: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error while processing request"})
				return
			}
			user := models.User{
				Email:     body.Email,
				Password:  hash,
				FirstName: body.FirstName,
				LastName:  body.LastName,
				Phone:     body.Phone,
				Role:      string(types.ROLE_CUSTOMER),
			}
			db := db.GetDb()
			if err := db.Create(&user).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					ctx.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
					return
				}
				log.Printf("Error creating user: %s\n", err.Error())
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error while processing request"})
				return
			}
			token, err := utils.GenerateJWT(user.Email, user.ID, user.Role)
			if err != nil {
				log.Printf("Error generating token: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
		}).
		POST("/login", func(ctx *gin.Context) {
			var body types.LoginUserRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			var user models.User
			err := db.
				Model(&models.User{}).
				Where(&models.User{Email: body.Email}).
				First(&user).
				Error
			if err != nil || !utils.CheckPassword(user.Password, body.Password) {
				ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			token, err := utils.GenerateJWT(user.Email, user.ID, user.Role)
			if err != nil {
				log.Printf("Error generating token: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error while processing request"})
				return
			}
			if rd := lib.GetRedisClient(); rd != nil {
				if err := rd.JSONSet(ctx, fmt.Sprintf("%d:user", user.ID), "$", &user).Err(); err != nil {
					log.Printf("[redis] Error updating user cache: %s\n", err.Error())
				}
			}
			ctx.JSON(http.StatusOK, gin.H{"token": token, "user": user})
		})
	return g
}

func userHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/auth/me", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			db := db.GetDb()
			var user models.User
			err := db.
				Model(&models.User{}).
				Where(&models.User{ID: userId}).
				First(&user).
				Error
			if err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": user})
		}).
		PUT("/users/profile", func(ctx *gin.Context) {
			var body types.UpdateProfileRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			updates := map[string]any{}
			if body.FirstName != nil {
				updates["first_name"] = *body.FirstName
			}
			if body.LastName != nil {
				updates["last_name"] = *body.LastName
			}
			if body.Phone != nil {
				updates["phone"] = *body.Phone
			}
			userId := ctx.GetUint("id")
			db := db.GetDb()
			var user models.User
			err := db.Transaction(func(tx *gorm.DB) error {
				if len(updates) > 0 {
					if err := tx.
						Model(&models.User{}).
						Where("id = ?", userId).
						Updates(updates).
						Error; err != nil {
						return err
					}
				}
				return tx.
					Model(&models.User{}).
					Where(&models.User{ID: userId}).
					First(&user).
					Error
			})
			if err != nil {
				log.Printf("Could not update profile for user [%d]: %s\n", userId, err.Error())
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": user})
		})
	return g
}
