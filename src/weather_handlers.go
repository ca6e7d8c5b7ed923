package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pbs/src/config"
	"pbs/src/lib"
	"pbs/src/types"

	"github.com/gin-gonic/gin"
)

const weatherCacheTTL = 10 * time.Minute

// owmResponse is the subset of the OpenWeatherMap answer the widget needs.
type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type owmForecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

func mockWeather(city string) types.Weather {
	return types.Weather{
		Temperature: 22,
		Description: "Clear sky",
		Icon:        "01d",
		Humidity:    60,
		WindSpeed:   5,
		City:        city,
	}
}

func mockForecast() []types.WeatherForecastEntry {
	descriptions := []string{"Clear sky", "Partly cloudy", "Light rain", "Clear sky", "Scattered clouds"}
	icons := []string{"01d", "02d", "10d", "01d", "03d"}
	entries := make([]types.WeatherForecastEntry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, types.WeatherForecastEntry{
			Date:        time.Now().AddDate(0, 0, i).Format(time.RFC3339),
			Temperature: 22 + i,
			Description: descriptions[i],
			Icon:        icons[i],
		})
	}
	return entries
}

func cachedJSON(ctx context.Context, key string, out any) bool {
	rd := lib.GetRedisClient()
	if rd == nil {
		return false
	}
	val, err := rd.Get(ctx, key).Result()
	if err != nil || val == "" {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func cacheJSON(ctx context.Context, key string, v any) {
	rd := lib.GetRedisClient()
	if rd == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rd.Set(ctx, key, string(b), weatherCacheTTL).Err(); err != nil {
		log.Printf("[redis] Error caching %s: %s\n", key, err.Error())
	}
}

func fetchCurrentWeather(city, apiKey string) (*types.Weather, error) {
	endpoint := fmt.Sprintf(
		"https://api.openweathermap.org/data/2.5/weather?q=%s&appid=%s&units=metric",
		url.QueryEscape(city), apiKey,
	)
	res, err := http.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var parsed owmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	weather := types.Weather{
		Temperature: int(math.Round(parsed.Main.Temp)),
		Humidity:    parsed.Main.Humidity,
		WindSpeed:   int(math.Round(parsed.Wind.Speed)),
		City:        parsed.Name,
	}
	if len(parsed.Weather) > 0 {
		weather.Description = parsed.Weather[0].Description
		weather.Icon = parsed.Weather[0].Icon
	}
	return &weather, nil
}

func fetchForecast(city, apiKey string) ([]types.WeatherForecastEntry, error) {
	endpoint := fmt.Sprintf(
		"https://api.openweathermap.org/data/2.5/forecast?q=%s&appid=%s&units=metric",
		url.QueryEscape(city), apiKey,
	)
	res, err := http.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var parsed owmForecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	// The 3-hourly list collapses to one midday entry per day.
	entries := make([]types.WeatherForecastEntry, 0, 5)
	for _, item := range parsed.List {
		if !strings.Contains(item.DtTxt, "12:00:00") {
			continue
		}
		entry := types.WeatherForecastEntry{
			Date:        item.DtTxt,
			Temperature: int(math.Round(item.Main.Temp)),
		}
		if len(item.Weather) > 0 {
			entry.Description = item.Weather[0].Description
			entry.Icon = item.Weather[0].Icon
		}
		entries = append(entries, entry)
		if len(entries) == 5 {
			break
		}
	}
	return entries, nil
}

// weatherHandlers proxies the facility's weather widget. The provider is
// read-only and optional: a missing key or a failed upstream call degrades to
// mock data, never to an error page.
func weatherHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	weather := g.Group("/weather")
	weather.
		GET("/current", func(ctx *gin.Context) {
			app := config.GetApp()
			city := ctx.DefaultQuery("city", app.WeatherCity)
			if app.WeatherAPIKey == "" {
				ctx.JSON(http.StatusOK, gin.H{"weather": mockWeather(city), "message": "Using mock weather data"})
				return
			}
			cacheKey := fmt.Sprintf("weather:current:%s", city)
			var cached types.Weather
			if cachedJSON(ctx, cacheKey, &cached) {
				ctx.JSON(http.StatusOK, gin.H{"weather": cached})
				return
			}
			current, err := fetchCurrentWeather(city, app.WeatherAPIKey)
			if err != nil {
				log.Printf("Weather API error: %s\n", err.Error())
				ctx.JSON(http.StatusOK, gin.H{"weather": mockWeather(city), "message": "Using mock weather data"})
				return
			}
			cacheJSON(ctx, cacheKey, current)
			ctx.JSON(http.StatusOK, gin.H{"weather": current})
		}).
		GET("/forecast", func(ctx *gin.Context) {
			app := config.GetApp()
			city := ctx.DefaultQuery("city", app.WeatherCity)
			if app.WeatherAPIKey == "" {
				ctx.JSON(http.StatusOK, gin.H{"forecast": mockForecast(), "message": "Using mock weather data"})
				return
			}
			cacheKey := fmt.Sprintf("weather:forecast:%s", city)
			var cached []types.WeatherForecastEntry
			if cachedJSON(ctx, cacheKey, &cached) {
				ctx.JSON(http.StatusOK, gin.H{"forecast": cached})
				return
			}
			forecast, err := fetchForecast(city, app.WeatherAPIKey)
			if err != nil {
				log.Printf("Weather API error: %s\n", err.Error())
				ctx.JSON(http.StatusOK, gin.H{"forecast": mockForecast(), "message": "Using mock weather data"})
				return
			}
			cacheJSON(ctx, cacheKey, forecast)
			ctx.JSON(http.StatusOK, gin.H{"forecast": forecast})
		})
	return g
}
