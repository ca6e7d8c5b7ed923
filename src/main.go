package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"pbs/src/boot"
	"pbs/src/config"
	"pbs/src/lib"
	"pbs/src/middlewares"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	_ "github.com/joho/godotenv/autoload"
	engineiotypes "github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

const (
	apiPrefix string = "/api/v1"
)

func validDate(s string) bool {
	_, err := time.Parse(config.DATE_FORMAT, s)
	return err == nil
}

var bookingDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return validDate(date)
}

var timeSlotValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	slot, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return config.GetApp().IsTimeSlot(slot)
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookingdate", bookingDateValidatorFunc)
		v.RegisterValidation("timeslot", timeSlotValidatorFunc)
	}
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

// corsMiddleware opens up to everything locally and pins the browser origin to
// APP_HOST everywhere else.
func corsMiddleware() gin.HandlerFunc {
	appHost := os.Getenv("APP_HOST")
	if os.Getenv("API_ENV") == "local" || appHost == "" {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "PUT", "DELETE")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
	cc.AllowOrigins = []string{appHost}
	return cors.New(cc)
}

func setupRouter() *gin.Engine {
	registerValidators()
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.Use(corsMiddleware())
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})

	// availability, weather and login go out without a token
	public := apiv1Group(router)
	availabilityHandlers(public)
	weatherHandlers(public)
	authHandlers(public)

	authed := apiv1Group(router)
	authed.Use(middlewares.AuthMiddleware)
	bookingHandlers(authed)
	userHandlers(authed)

	app := config.GetApp()
	if app.ReceiptsBucket == "" {
		router.Static("/uploads", app.UploadDir)
	}
	return router
}

// roomArg coerces the join_room argument; socket.io clients send the user id
// as a JSON number.
func roomArg(v any) (uint, bool) {
	switch t := v.(type) {
	case float64:
		return uint(t), true
	case int:
		return uint(t), true
	case string:
		id, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return uint(id), true
	default:
		return 0, false
	}
}

func setupSocketServer(r *gin.Engine) *socket.Server {
	c := socket.DefaultServerOptions()
	c.SetServeClient(true)
	c.SetPingInterval(time.Second)
	c.SetPingTimeout(200 * time.Millisecond)
	c.SetMaxHttpBufferSize(1_000_000)
	c.SetConnectTimeout(time.Second)
	c.SetCors(&engineiotypes.Cors{
		Origin:      "*",
		Credentials: true,
	})

	wss := socket.NewServer(nil, nil)
	wss.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		log.Printf("[newclient]: %s\n", string(client.Id()))
		client.On("join_room", func(args ...any) {
			if len(args) == 0 {
				return
			}
			userId, ok := roomArg(args[0])
			if !ok {
				log.Printf("join_room from client [%s] with bad argument: %v\n", string(client.Id()), args[0])
				return
			}
			client.Join(socket.Room(lib.UserRoom(userId)))
			log.Printf("Client [%s] joined %s\n", string(client.Id()), lib.UserRoom(userId))
		})
		client.On("leave_room", func(args ...any) {
			if len(args) == 0 {
				return
			}
			if userId, ok := roomArg(args[0]); ok {
				client.Leave(socket.Room(lib.UserRoom(userId)))
			}
		})
		client.On("disconnect", func(args ...any) {
			log.Printf("Client [%s] disconnected\n", string(client.Id()))
		})
	})

	r.GET("/socket.io/*any", gin.WrapH(wss.ServeHandler(c)))
	r.POST("/socket.io/*any", gin.WrapH(wss.ServeHandler(c)))
	return wss
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()

	app := config.GetApp()
	boot.InitDb()
	boot.InitScheduler()
	defer boot.StopScheduler()

	if apiEnv == "local" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter()
	if app.PushBackend == "pusher" {
		lib.NewHub(lib.NewPusherSink())
		log.Println("Pusher hub listening for events...")
	} else {
		wss := setupSocketServer(router)
		lib.NewHub(lib.NewSocketSink(wss))
		log.Println("WS server listening for connections...")
	}

	if err := router.Run(fmt.Sprintf(":%d", app.Port)); err != nil {
		log.Fatalf("Server error: %s\n", err.Error())
	}
}
