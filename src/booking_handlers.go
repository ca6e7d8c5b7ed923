package main

import (
	"errors"
	"log"
	"net/http"

	"pbs/src/common"
	"pbs/src/config"
	awslib "pbs/src/lib/aws"
	"pbs/src/types"

	"github.com/gin-gonic/gin"
)

func bookingErrorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrSlotConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrInvalidAttachment):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		// storage unavailable; the caller owns the retry decision
		return http.StatusServiceUnavailable
	}
}

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			bookings, err := common.ListOwnBookings(userId)
			if err != nil {
				log.Printf("Error listing bookings for user [%d]: %s\n", userId, err.Error())
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/all", func(ctx *gin.Context) {
			rows, err := common.ListAllBookings(ctx.GetString("role"))
			if err != nil {
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
		}).
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			app := config.GetApp()
			if body.NumberOfPlayers < app.MinPlayers || body.NumberOfPlayers > app.MaxPlayers {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "number of players is out of range"})
				return
			}
			userId := ctx.GetUint("id")
			booking, err := common.CreateBooking(userId, &body)
			if err != nil {
				log.Printf("Could not create booking for user [%d]: %s\n", userId, err.Error())
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": booking})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			booking, err := common.GetBooking(params.ID, ctx.GetUint("id"), ctx.GetString("role"))
			if err != nil {
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			res := gin.H{"data": booking}
			if bucket := config.GetApp().ReceiptsBucket; bucket != "" && booking.PaymentReceipt != nil {
				if url, err := awslib.S3PresignReceipt(ctx.Request.Context(), bucket, *booking.PaymentReceipt); err == nil {
					res["receipt_url"] = url
				}
			}
			ctx.JSON(http.StatusOK, res)
		}).
		PUT("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.UpdateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			app := config.GetApp()
			if body.NumberOfPlayers != nil && (*body.NumberOfPlayers < app.MinPlayers || *body.NumberOfPlayers > app.MaxPlayers) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "number of players is out of range"})
				return
			}
			booking, err := common.UpdateBooking(params.ID, ctx.GetUint("id"), &body)
			if err != nil {
				log.Printf("Could not update booking [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		DELETE("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if err := common.CancelBooking(params.ID, ctx.GetUint("id")); err != nil {
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"message": "Booking cancelled successfully"})
		}).
		PUT("/bookings/:id/status", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.UpdateBookingStatusRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			booking, err := common.UpdateBookingStatus(params.ID, body.Status, ctx.GetString("role"))
			if err != nil {
				log.Printf("Could not update status for booking [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		POST("/bookings/:id/receipt", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			fh, err := ctx.FormFile("receipt")
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
				return
			}
			if fh.Size > config.GetApp().ReceiptMaxBytes {
				ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": common.ErrInvalidAttachment.Error()})
				return
			}
			file, err := fh.Open()
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			defer file.Close()
			contentType := fh.Header.Get("Content-Type")
			filename, booking, err := common.AttachReceipt(ctx.Request.Context(), params.ID, ctx.GetUint("id"), fh.Filename, contentType, fh.Size, file)
			if err != nil {
				log.Printf("Could not attach receipt to booking [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(bookingErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"message":  "Receipt uploaded successfully",
				"filename": filename,
				"data":     booking,
			})
		})
	return g
}

func availabilityHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.GET("/bookings/availability/:date", func(ctx *gin.Context) {
		var params types.AvailabilityRequestParams
		if err := ctx.ShouldBindUri(&params); err != nil {
			ctx.Status(http.StatusBadRequest)
			return
		}
		if !validDate(params.Date) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		availability, err := common.ResolveAvailability(params.Date)
		if err != nil {
			log.Printf("Error resolving availability for %s: %s\n", params.Date, err.Error())
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error while processing request"})
			return
		}
		ctx.JSON(http.StatusOK, availability)
	})
	return g
}
