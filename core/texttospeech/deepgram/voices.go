package deepgram

type deepgramVoice string

const (
	VoiceAuraAsteriaEn deepgramVoice = "aura-asteria-en"
	VoiceAuraLunaEn    deepgramVoice = "aura-luna-en"
	VoiceAuraStellaEn  deepgramVoice = "aura-stella-en"
	VoiceAuraAthenaEn  deepgramVoice = "aura-athena-en"
	VoiceAuraHeraEn    deepgramVoice = "aura-hera-en"
	VoiceAuraOrionEn   deepgramVoice = "aura-orion-en"
	VoiceAuraArcasEn   deepgramVoice = "aura-arcas-en"
	VoiceAuraPerseusEn deepgramVoice = "aura-perseus-en"
	VoiceAuraAngusEn   deepgramVoice = "aura-angus-en"
	VoiceAuraOrpheusEn deepgramVoice = "aura-orpheus-en"
	VoiceAuraHeliosEn  deepgramVoice = "aura-helios-en"
	VoiceAuraZeusEn    deepgramVoice = "aura-zeus-en"
)

const defaultVoice = VoiceAuraAsteriaEn

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAuraAsteriaEn,
		VoiceAuraLunaEn,
		VoiceAuraStellaEn,
		VoiceAuraAthenaEn,
		VoiceAuraHeraEn,
		VoiceAuraOrionEn,
		VoiceAuraArcasEn,
		VoiceAuraPerseusEn,
		VoiceAuraAngusEn,
		VoiceAuraOrpheusEn,
		VoiceAuraHeliosEn,
		VoiceAuraZeusEn,
	}
}
