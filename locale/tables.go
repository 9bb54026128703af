package locale

var en = map[Key]string{
	LiveContent:   "%s %s is live with **%s**!",
	UpdateContent: "%s %s switched game to **%s**!",
	VodContent:    "%s %s was live for **%s**",
	Playing:       "Playing",
	Started:       "Started",
	WatchFrom:     "Start watching at %s",
	Timestamps:    "Timestamps",
	TopClips:      "Top Clips",
	Views:         "views",
	VideoRemoved:  "<Video Removed>",
	NoCategory:    "No Category",
}

var de = map[Key]string{
	LiveContent:   "%s %s ist live mit **%s**!",
	UpdateContent: "%s %s spielt jetzt **%s**!",
	VodContent:    "%s %s war **%s** live",
	Playing:       "Spielt",
	Started:       "Gestartet",
	WatchFrom:     "Ab hier ansehen: %s",
	Timestamps:    "Zeitstempel",
	TopClips:      "Top Clips",
	Views:         "Aufrufe",
	VideoRemoved:  "<Video entfernt>",
	NoCategory:    "Keine Kategorie",
}

var es = map[Key]string{
	LiveContent:   "¡%s %s está en directo con **%s**!",
	UpdateContent: "¡%s %s cambió de juego a **%s**!",
	VodContent:    "%s %s estuvo en directo durante **%s**",
	Playing:       "Jugando",
	Started:       "Comenzó",
	WatchFrom:     "Empieza a ver en %s",
	Timestamps:    "Marcas de tiempo",
	TopClips:      "Mejores clips",
	Views:         "visitas",
	VideoRemoved:  "<Vídeo eliminado>",
	NoCategory:    "Sin categoría",
}

var fr = map[Key]string{
	LiveContent:   "%s %s est en live avec **%s** !",
	UpdateContent: "%s %s joue maintenant à **%s** !",
	VodContent:    "%s %s était en live pendant **%s**",
	Playing:       "Joue à",
	Started:       "Commencé",
	WatchFrom:     "Regarder à partir de %s",
	Timestamps:    "Horodatages",
	TopClips:      "Meilleurs clips",
	Views:         "vues",
	VideoRemoved:  "<Vidéo supprimée>",
	NoCategory:    "Aucune catégorie",
}
