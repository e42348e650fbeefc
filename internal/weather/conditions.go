package weather

// FallbackAdvisory is returned for any condition code the table does not list.
const FallbackAdvisory = "Weather data unavailable."

type conditionRule struct {
	codes  []int
	advice string
}

// --------------------------------------------------------------------------
// Condition table, OpenWeather condition id -> morning advisory
// --------------------------------------------------------------------------

var conditionTable = []conditionRule{
	// Thunderstorm (2xx)
	{[]int{200, 230}, "Thunderstorm with light rain. Carry umbrella."},
	{[]int{201, 231}, "Thunderstorm with rain. Stay indoors."},
	{[]int{202, 232}, "Heavy thunderstorm. Avoid going out."},
	{[]int{210}, "Light thunderstorm. Be cautious."},
	{[]int{211}, "Thunderstorm. Stay safe."},
	{[]int{212}, "Severe thunderstorm. Seek shelter."},
	{[]int{221}, "Ragged thunderstorm. Stay alert."},

	// Drizzle (3xx)
	{[]int{300, 310}, "Light drizzle. Umbrella recommended."},
	{[]int{301, 311}, "Drizzle. Stay dry."},
	{[]int{302, 312}, "Heavy drizzle. Wear waterproofs."},
	{[]int{313, 321}, "Shower drizzle. Be prepared."},
	{[]int{314}, "Heavy shower drizzle. Stay indoors."},

	// Rain (5xx)
	{[]int{500, 520}, "Light rain. Umbrella advised."},
	{[]int{501, 521}, "Moderate rain. Wear waterproofs."},
	{[]int{502, 522}, "Heavy rain. Avoid going out."},
	{[]int{503}, "Very heavy rain. Stay indoors."},
	{[]int{504}, "Extreme rain. Seek shelter."},
	{[]int{511}, "Freezing rain. Roads may be icy."},
	{[]int{531}, "Ragged shower rain. Be cautious."},

	// Snow (6xx)
	{[]int{600, 620}, "Light snow. Dress warmly."},
	{[]int{601, 621}, "Snowfall. Roads may be slippery."},
	{[]int{602, 622}, "Heavy snow. Avoid travel."},
	{[]int{611, 612, 613}, "Sleet. Slippery conditions."},
	{[]int{615, 616}, "Rain and snow mix. Dress appropriately."},

	// Atmosphere (7xx)
	{[]int{701}, "Mist. Low visibility."},
	{[]int{711}, "Smoke. Air quality may be poor."},
	{[]int{721}, "Haze. Limit outdoor activities."},
	{[]int{731, 751, 761}, "Dusty conditions. Wear mask."},
	{[]int{741}, "Fog. Drive carefully."},
	{[]int{762}, "Volcanic ash. Stay indoors."},
	{[]int{771}, "Squalls. Secure loose items."},
	{[]int{781}, "Tornado. Seek immediate shelter."},

	// Clear and clouds (800-804)
	{[]int{800}, "Clear sky. Enjoy your day."},
	{[]int{801}, "Few clouds. Pleasant weather."},
	{[]int{802}, "Scattered clouds. Mild conditions."},
	{[]int{803}, "Broken clouds. Overcast skies."},
	{[]int{804}, "Overcast clouds. Possible rain."},
}

// advisoryByCode is the flattened lookup built from conditionTable.
var advisoryByCode = func() map[int]string {
	m := make(map[int]string)
	for _, rule := range conditionTable {
		for _, code := range rule.codes {
			m[code] = rule.advice
		}
	}
	return m
}()

// Advisory returns the fixed advisory sentence for a condition code.
// It is total: unknown codes map to FallbackAdvisory.
func Advisory(code int) string {
	if advice, ok := advisoryByCode[code]; ok {
		return advice
	}
	return FallbackAdvisory
}

// Group names the OpenWeather condition family a code belongs to.
func Group(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "thunderstorm"
	case code >= 300 && code < 400:
		return "drizzle"
	case code >= 500 && code < 600:
		return "rain"
	case code >= 600 && code < 700:
		return "snow"
	case code >= 700 && code < 800:
		return "atmosphere"
	case code == 800:
		return "clear"
	case code > 800 && code < 900:
		return "clouds"
	default:
		return "unknown"
	}
}
